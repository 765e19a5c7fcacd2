//go:build !linux

package tail

import "context"

// notifyApplicable: no kernel notification facility here; the polling loop
// serves every follow.
func (t *Tailer) notifyApplicable(targets []*Target) bool {
	return false
}

func (t *Tailer) followNotify(ctx context.Context, targets []*Target) error {
	return errFallback
}
