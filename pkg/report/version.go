package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidReportVersion is returned when a report or engine version cannot be parsed.
var ErrInvalidReportVersion = errors.New("invalid report version")

// maxVersionSegments is the number of dot-separated fields of a semantic version.
const maxVersionSegments = 3

// MinimumDashSeparatorVersion is the first report schema version whose
// happy-path keys are dash separated.
var MinimumDashSeparatorVersion = MustParseVersion("1.13.0")

// Version is a major.minor.patch triple compared field by field.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses a semantic version.
//
// Each segment contributes its leading digits; a segment without digits (the
// "x" of "1.13.x") counts as zero, as do missing minor and patch segments.
// An optional "v" prefix is accepted. The major segment must start with a digit.
func ParseVersion(raw string) (Version, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if trimmed == "" {
		return Version{}, fmt.Errorf("%w: empty", ErrInvalidReportVersion)
	}

	segments := strings.Split(trimmed, ".")
	if len(segments) > maxVersionSegments {
		return Version{}, fmt.Errorf("%w: %q has %d segments", ErrInvalidReportVersion, raw, len(segments))
	}

	var fields [maxVersionSegments]int

	for i, seg := range segments {
		value, ok := leadingNumber(seg)
		if !ok && i == 0 {
			return Version{}, fmt.Errorf("%w: %q has non-numeric major", ErrInvalidReportVersion, raw)
		}

		fields[i] = value
	}

	return Version{Major: fields[0], Minor: fields[1], Patch: fields[2]}, nil
}

// MustParseVersion is ParseVersion for constants; it panics on error.
func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}

	return v
}

func leadingNumber(seg string) (int, bool) {
	end := 0
	for end < len(seg) && seg[end] >= '0' && seg[end] <= '9' {
		end++
	}

	if end == 0 {
		return 0, false
	}

	n, err := strconv.Atoi(seg[:end])
	if err != nil {
		return 0, false
	}

	return n, true
}

// Compare returns -1, 0 or 1 comparing major, then minor, then patch.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Patch - other.Patch)
	}
}

// Less reports whether v orders before other.
func (v Version) Less(other Version) bool {
	return v.Compare(other) < 0
}

// IsZero reports whether v is 0.0.0.
func (v Version) IsZero() bool {
	return v == Version{}
}

// String formats v as major.minor.patch.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}

	*v = parsed

	return nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
