package evented

import "fmt"

// Kind identifies an event. Kinds replace free-form event names so a
// listener can subscribe to several at once without string parsing.
type Kind int

const (
	// Transform fires after a source has applied and logged a transform.
	// Args: *transform.Transform, *transform.Result.
	Transform Kind = iota + 1

	// Reset fires after a source cleared its document and log.
	Reset

	BeforeQuery
	AssistQuery
	RescueQuery
	Query
	QueryFail

	BeforeUpdate
	AssistUpdate
	RescueUpdate
	Update
	UpdateFail

	BeforePush
	AssistPush
	RescuePush
	Push
	PushFail

	BeforePull
	AssistPull
	RescuePull
	Pull
	PullFail
)

var kindNames = map[Kind]string{
	Transform:    "transform",
	Reset:        "reset",
	BeforeQuery:  "beforeQuery",
	AssistQuery:  "assistQuery",
	RescueQuery:  "rescueQuery",
	Query:        "query",
	QueryFail:    "queryFail",
	BeforeUpdate: "beforeUpdate",
	AssistUpdate: "assistUpdate",
	RescueUpdate: "rescueUpdate",
	Update:       "update",
	UpdateFail:   "updateFail",
	BeforePush:   "beforePush",
	AssistPush:   "assistPush",
	RescuePush:   "rescuePush",
	Push:         "push",
	PushFail:     "pushFail",
	BeforePull:   "beforePull",
	AssistPull:   "assistPull",
	RescuePull:   "rescuePull",
	Pull:         "pull",
	PullFail:     "pullFail",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the Kind with the given name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// Verb is a request type. Each verb has the same five lifecycle events.
type Verb int

const (
	VerbQuery Verb = iota + 1
	VerbUpdate
	VerbPush
	VerbPull
)

// verbKinds holds before, assist, rescue, did, didNot per verb.
var verbKinds = map[Verb][5]Kind{
	VerbQuery:  {BeforeQuery, AssistQuery, RescueQuery, Query, QueryFail},
	VerbUpdate: {BeforeUpdate, AssistUpdate, RescueUpdate, Update, UpdateFail},
	VerbPush:   {BeforePush, AssistPush, RescuePush, Push, PushFail},
	VerbPull:   {BeforePull, AssistPull, RescuePull, Pull, PullFail},
}

func (v Verb) String() string {
	switch v {
	case VerbQuery:
		return "query"
	case VerbUpdate:
		return "update"
	case VerbPush:
		return "push"
	case VerbPull:
		return "pull"
	default:
		return fmt.Sprintf("Verb(%d)", int(v))
	}
}

// ParseVerb accepts "query", "update", "push" or "pull".
func ParseVerb(name string) (Verb, error) {
	for v := range verbKinds {
		if v.String() == name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown request verb %q", name)
}

// Before fires ahead of the request.
func (v Verb) Before() Kind { return verbKinds[v][0] }

// Assist is resolved before the source's own handler runs.
func (v Verb) Assist() Kind { return verbKinds[v][1] }

// Rescue is resolved after the source's own handler failed.
func (v Verb) Rescue() Kind { return verbKinds[v][2] }

// Did fires after the request succeeded.
func (v Verb) Did() Kind { return verbKinds[v][3] }

// DidNot fires after the request failed.
func (v Verb) DidNot() Kind { return verbKinds[v][4] }
