package cache

import "time"

// Op names a cache operation in a Result.
type Op string

const (
	OpSet     Op = "set"
	OpGet     Op = "get"
	OpDelete  Op = "delete"
	OpClear   Op = "clear"
	OpCleanup Op = "cleanup"
	OpStats   Op = "stats"
	OpFetch   Op = "fetch"
)

// Outcome classifies what an operation did.
type Outcome int

const (
	OutcomeHit      Outcome = iota // live entry returned
	OutcomeMiss                    // nothing stored
	OutcomeExpired                 // entry found past ExpireAt and removed
	OutcomeCorrupt                 // durable record unreadable and removed
	OutcomeStored                  // written to the policy backend
	OutcomeFallback                // durable write failed, written to memory
	OutcomeDeleted                 // entry removed or already absent
	OutcomeCleared                 // namespace flushed or swept
	OutcomeError                   // durable store error absorbed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeExpired:
		return "expired"
	case OutcomeCorrupt:
		return "corrupt"
	case OutcomeStored:
		return "stored"
	case OutcomeFallback:
		return "fallback"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeCleared:
		return "cleared"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Result describes a single operation for diagnostics. Err holds the
// absorbed error, if any; it is never returned to cache callers.
type Result struct {
	Op       Op
	Key      Key
	Backend  Backend
	Outcome  Outcome
	Err      error
	Removed  int           // entries removed by Clear or Cleanup
	Duration time.Duration // fetch time, OpFetch only
}

// Observer receives a Result for every operation. Implementations must be
// safe for concurrent use and must not call back into the cache.
type Observer interface {
	Observe(Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Result)

func (f ObserverFunc) Observe(r Result) { f(r) }
