package mapper

import (
	"fmt"

	"github.com/Sumatoshi-tech/scanreport/pkg/chunkparser"
)

// ItemKind classifies what the Assembler produced.
type ItemKind int

// Item kinds.
const (
	// ItemScalar is a top-level scalar member such as reportVersion.
	ItemScalar ItemKind = iota + 1
	// ItemSummary is the summary object.
	ItemSummary
	// ItemIndex is the index object with the description templates.
	ItemIndex
	// ItemOperation is one element of the operations array.
	ItemOperation
	// ItemIssue is one element of the issues array.
	ItemIssue
	// ItemInvalid is a known member or array element of the wrong JSON shape.
	// Problem says what was expected.
	ItemInvalid
)

// Top-level member names of a report document.
const (
	MemberTaskID        = "taskId"
	MemberScanVersion   = "scanVersion"
	MemberReportVersion = "reportVersion"
	MemberEngineVersion = "engineVersion"
	MemberDate          = "date"
	MemberSummary       = "summary"
	MemberIndex         = "index"
	MemberOperations    = "operations"
	MemberIssues        = "issues"
)

var topLevelScalars = map[string]struct{}{
	MemberTaskID:        {},
	MemberScanVersion:   {},
	MemberReportVersion: {},
	MemberEngineVersion: {},
	MemberDate:          {},
}

// Item is one unit of report content completed by the Assembler.
type Item struct {
	Kind ItemKind
	// Key is the top-level member the item belongs to.
	Key string
	// Scalar is set for ItemScalar.
	Scalar chunkparser.Scalar
	// Record is set for object items.
	Record Record
	// Problem is set for ItemInvalid.
	Problem string
}

const (
	problemNotObject = "expected an object, value skipped"
	problemNotArray  = "expected an array, member skipped"
)

func invalid(key, problem string) Item {
	return Item{Kind: ItemInvalid, Key: key, Problem: problem}
}

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionIndex
	sectionOperations
	sectionIssues
	sectionSkip
)

var sectionKeys = map[section]string{
	sectionSummary:    MemberSummary,
	sectionIndex:      MemberIndex,
	sectionOperations: MemberOperations,
	sectionIssues:     MemberIssues,
}

// Assembler turns parser events into report items. It materializes at most
// one record at a time and skips unknown members without building them.
type Assembler struct {
	section section
	build   *builder
	rooted  bool
}

// NewAssembler creates an Assembler for one report document.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Push consumes one event. It returns the completed item, if any.
func (a *Assembler) Push(ev chunkparser.Event) (Item, bool, error) {
	if a.build != nil {
		if !a.build.push(ev) {
			return Item{}, false, nil
		}

		return a.complete(), true, nil
	}

	switch ev.Depth {
	case 0:
		return Item{}, false, a.pushRoot(ev)
	case 1:
		return a.pushMember(ev)
	case 2:
		return a.pushElement(ev)
	default:
		return Item{}, false, nil
	}
}

func (a *Assembler) pushRoot(ev chunkparser.Event) error {
	switch ev.Kind {
	case chunkparser.OpenObject:
		a.rooted = true

		return nil
	case chunkparser.CloseObject:
		return nil
	default:
		return fmt.Errorf("%w: report root must be an object, got %s", chunkparser.ErrMalformedStream, ev.Kind)
	}
}

func (a *Assembler) pushMember(ev chunkparser.Event) (Item, bool, error) {
	if !a.rooted {
		return Item{}, false, fmt.Errorf("%w: member outside the report object", chunkparser.ErrMalformedStream)
	}

	switch ev.Kind {
	case chunkparser.Value:
		if _, known := topLevelScalars[ev.Key]; known {
			return Item{Kind: ItemScalar, Key: ev.Key, Scalar: ev.Value}, true, nil
		}

		switch ev.Key {
		case MemberSummary, MemberIndex:
			return invalid(ev.Key, problemNotObject), true, nil
		case MemberOperations, MemberIssues:
			return invalid(ev.Key, problemNotArray), true, nil
		}
	case chunkparser.OpenObject:
		switch ev.Key {
		case MemberSummary:
			a.section = sectionSummary
			a.startBuild(ev)
		case MemberIndex:
			a.section = sectionIndex
			a.startBuild(ev)
		case MemberOperations, MemberIssues:
			a.section = sectionSkip

			return invalid(ev.Key, problemNotArray), true, nil
		default:
			a.section = sectionSkip
		}
	case chunkparser.OpenArray:
		switch ev.Key {
		case MemberOperations:
			a.section = sectionOperations
		case MemberIssues:
			a.section = sectionIssues
		case MemberSummary, MemberIndex:
			a.section = sectionSkip

			return invalid(ev.Key, problemNotObject), true, nil
		default:
			a.section = sectionSkip
		}
	case chunkparser.CloseObject, chunkparser.CloseArray:
		a.section = sectionNone
	case chunkparser.Key:
	}

	return Item{}, false, nil
}

func (a *Assembler) pushElement(ev chunkparser.Event) (Item, bool, error) {
	if a.section != sectionOperations && a.section != sectionIssues {
		return Item{}, false, nil
	}

	a.startBuild(ev)

	if a.build.push(ev) {
		return a.complete(), true, nil
	}

	return Item{}, false, nil
}

// startBuild begins materializing a value. Summary and index objects are
// started from their own open event, array elements replay it through push.
func (a *Assembler) startBuild(ev chunkparser.Event) {
	a.build = &builder{}

	if a.section == sectionSummary || a.section == sectionIndex {
		a.build.push(ev)
	}
}

func (a *Assembler) complete() Item {
	value := a.build.result
	a.build = nil

	key := sectionKeys[a.section]
	kind := ItemInvalid

	switch a.section {
	case sectionSummary:
		kind = ItemSummary
		a.section = sectionNone
	case sectionIndex:
		kind = ItemIndex
		a.section = sectionNone
	case sectionOperations:
		kind = ItemOperation
	case sectionIssues:
		kind = ItemIssue
	case sectionNone, sectionSkip:
	}

	obj, isObject := value.(map[string]any)
	if !isObject {
		return invalid(key, problemNotObject)
	}

	return Item{Kind: kind, Key: key, Record: Record(obj)}
}
