package importer

import "github.com/forumkit/flarum-importer/internal/errors"

// errFatalOutcome stands in for a Fatal outcome built without a cause.
var errFatalOutcome = errors.NewStd("record transform failed")

// OutcomeKind says what the writer does with a transformed record.
type OutcomeKind int

const (
	// OutcomeProceed creates the record.
	OutcomeProceed OutcomeKind = iota
	// OutcomeSkipped drops the record with a warning.
	OutcomeSkipped
	// OutcomeIgnored drops the record, or a best-effort action, quietly.
	OutcomeIgnored
	// OutcomeFatal aborts the run.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProceed:
		return "proceed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of transforming one source record.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

// Proceed lets the writer create the record.
func Proceed() Outcome {
	return Outcome{Kind: OutcomeProceed}
}

// Skip drops the record. reason is logged at warn level.
func Skip(reason string) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

// Ignore drops the record and logs err at debug level only.
func Ignore(err error) Outcome {
	o := Outcome{Kind: OutcomeIgnored, Err: err}
	if err != nil {
		o.Reason = err.Error()
	}
	return o
}

// Fatal aborts the run with err. A nil err still aborts the run.
func Fatal(err error) Outcome {
	if err == nil {
		err = errFatalOutcome
	}
	return Outcome{Kind: OutcomeFatal, Err: err, Reason: err.Error()}
}

// IsProceed reports whether the record should be created.
func (o Outcome) IsProceed() bool {
	return o.Kind == OutcomeProceed
}
