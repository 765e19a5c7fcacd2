package tail

import "time"

// CountMode selects the unit tail counts in.
type CountMode int

const (
	// Lines counts delimiter-terminated records.
	Lines CountMode = iota
	// Bytes counts raw bytes.
	Bytes
)

// FollowMode selects what "follow" tracks once the initial tail is printed.
type FollowMode int

const (
	// NoFollow exits after the initial tail.
	NoFollow FollowMode = iota
	// FollowDescriptor keeps reading the descriptor opened first, even if
	// the name is renamed away from it.
	FollowDescriptor
	// FollowName tracks whichever file currently bears the name, reopening
	// on rotation.
	FollowName
)

// HeaderMode controls when "==> name <==" headers are printed.
type HeaderMode int

const (
	// HeaderAuto prints headers only when more than one file is named.
	HeaderAuto HeaderMode = iota
	// HeaderAlways forces headers on.
	HeaderAlways
	// HeaderNever forces headers off.
	HeaderNever
)

// DefaultMaxUnchangedStats is the number of consecutive unchanged polling
// passes after which --follow=name rechecks a file for silent rotation.
const DefaultMaxUnchangedStats = 5

// Config is the immutable option record the engine consumes. The command
// layer builds it once; nothing mutates it after Run starts.
type Config struct {
	Mode      CountMode
	Count     int64 // units to print, or with FromStart, units to skip
	FromStart bool

	Follow FollowMode
	Retry  bool // keep trying to open inaccessible names
	PIDs   []int

	SleepInterval     time.Duration
	MaxUnchangedStats int

	ZeroTerminated bool // line delimiter is NUL instead of newline
	Headers        HeaderMode

	DisableInotify   bool // test hook: never use the notification back-end
	PresumeInputPipe bool // test hook: force the non-seeking read paths
}

// following reports whether any follow mode is in effect.
func (c *Config) following() bool {
	return c.Follow != NoFollow
}

// delim is the record delimiter in effect.
func (c *Config) delim() byte {
	if c.ZeroTerminated {
		return 0x00
	}
	return '\n'
}

// pollTimeout converts SleepInterval to a poll(2) timeout in milliseconds,
// rounding up so a tiny non-zero interval does not become a busy loop.
func (c *Config) pollTimeout() int {
	ms := c.SleepInterval.Milliseconds()
	if ms*time.Millisecond.Nanoseconds() < c.SleepInterval.Nanoseconds() {
		ms++
	}
	if ms > int64(int(^uint(0)>>1)) {
		ms = int64(int(^uint(0) >> 1))
	}
	return int(ms)
}
