/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/friendsincode/smartlists/internal/catalog"
	"github.com/friendsincode/smartlists/internal/models"
)

// Kind classifies a field by the data it carries.
type Kind int

const (
	KindString Kind = iota
	KindSimpleEnum
	KindStringList
	KindNumeric
	KindDate
	KindBoolean
	KindResolution
	KindFramerate
	KindSimilarity
	KindUserScoped
)

var kindNames = map[Kind]string{
	KindString:     "string",
	KindSimpleEnum: "enum",
	KindStringList: "string-list",
	KindNumeric:    "numeric",
	KindDate:       "date",
	KindBoolean:    "boolean",
	KindResolution: "resolution",
	KindFramerate:  "framerate",
	KindSimilarity: "similarity",
	KindUserScoped: "user",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	// ErrUnknownField is matched by every UnknownFieldError.
	ErrUnknownField = errors.New("unknown field")
	// ErrOperatorNotAllowed reports an operator illegal for a field's kind.
	ErrOperatorNotAllowed = errors.New("operator not allowed for field")
)

// UnknownFieldError names a field missing from the classifier table.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

func (e *UnknownFieldError) Is(target error) bool {
	return target == ErrUnknownField
}

// Field describes one filterable field. Exactly one accessor matching Kind
// (or Scalar for user-scoped fields) is set.
type Field struct {
	Name string
	Kind Kind
	// Scalar is the comparison kind of a user-scoped field.
	Scalar Kind

	text   func(*catalog.Item) string
	list   func(*catalog.Item) []string
	number func(*catalog.Item) (float64, bool)
	date   func(*catalog.Item) (time.Time, bool)
	flag   func(*catalog.Item) bool
	user   func(catalog.UserData) (any, bool)
}

// CompareKind is the kind whose operators apply to the field.
func (f Field) CompareKind() Kind {
	if f.Kind == KindUserScoped {
		return f.Scalar
	}
	return f.Kind
}

// Canonical field names referenced outside the table.
const (
	FieldCollections   = "Collections"
	FieldNextUnwatched = "NextUnwatched"
	FieldSimilarTo     = "SimilarTo"
)

var fieldTable = map[string]Field{}

func register(f Field) {
	fieldTable[strings.ToLower(f.Name)] = f
}

func textField(name string, kind Kind, get func(*catalog.Item) string) {
	register(Field{Name: name, Kind: kind, text: get})
}

func listField(name string, get func(*catalog.Item) []string) {
	register(Field{Name: name, Kind: KindStringList, list: get})
}

func numberField(name string, kind Kind, get func(*catalog.Item) (float64, bool)) {
	register(Field{Name: name, Kind: kind, number: get})
}

func dateField(name string, get func(*catalog.Item) (time.Time, bool)) {
	register(Field{Name: name, Kind: KindDate, date: get})
}

func userField(name string, scalar Kind, get func(catalog.UserData) (any, bool)) {
	register(Field{Name: name, Kind: KindUserScoped, Scalar: scalar, user: get})
}

func optionalFloat(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func optionalInt(v *int) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return float64(*v), true
}

func optionalTime(v *time.Time) (time.Time, bool) {
	if v == nil || v.IsZero() {
		return time.Time{}, false
	}
	return *v, true
}

func init() {
	textField("Name", KindString, func(i *catalog.Item) string { return i.Name })
	textField("SeriesName", KindString, func(i *catalog.Item) string { return i.SeriesName })
	textField("Album", KindString, func(i *catalog.Item) string { return i.Album })
	textField("Overview", KindString, func(i *catalog.Item) string { return i.Overview })
	textField("Path", KindString, func(i *catalog.Item) string { return i.Path })

	textField("ItemType", KindSimpleEnum, func(i *catalog.Item) string { return string(i.Type) })
	textField("OfficialRating", KindSimpleEnum, func(i *catalog.Item) string { return i.OfficialRating })
	textField("VideoCodec", KindSimpleEnum, func(i *catalog.Item) string { return i.VideoCodec })
	textField("AudioCodec", KindSimpleEnum, func(i *catalog.Item) string { return i.AudioCodec })
	textField("Container", KindSimpleEnum, func(i *catalog.Item) string { return i.Container })

	listField("Genres", func(i *catalog.Item) []string { return i.Genres })
	listField("Tags", func(i *catalog.Item) []string { return i.Tags })
	listField("Studios", func(i *catalog.Item) []string { return i.Studios })
	listField("People", func(i *catalog.Item) []string { return i.PeopleWithRoles() })
	listField("Actors", func(i *catalog.Item) []string {
		return i.PeopleWithRoles(catalog.RoleActor, catalog.RoleGuestStar)
	})
	listField("Directors", func(i *catalog.Item) []string { return i.PeopleWithRoles(catalog.RoleDirector) })
	listField("Writers", func(i *catalog.Item) []string { return i.PeopleWithRoles(catalog.RoleWriter) })
	listField("Artists", func(i *catalog.Item) []string { return i.Artists })
	listField("AlbumArtists", func(i *catalog.Item) []string { return i.AlbumArtists })
	listField("AudioLanguages", func(i *catalog.Item) []string { return i.AudioLanguages })
	listField(FieldCollections, func(i *catalog.Item) []string { return i.Collections })

	numberField("ProductionYear", KindNumeric, func(i *catalog.Item) (float64, bool) {
		return float64(i.ProductionYear), i.ProductionYear > 0
	})
	numberField("CommunityRating", KindNumeric, func(i *catalog.Item) (float64, bool) { return optionalFloat(i.CommunityRating) })
	numberField("CriticRating", KindNumeric, func(i *catalog.Item) (float64, bool) { return optionalFloat(i.CriticRating) })
	numberField("RuntimeMinutes", KindNumeric, func(i *catalog.Item) (float64, bool) {
		return i.RuntimeMinutes(), i.Runtime > 0
	})
	numberField("SeasonNumber", KindNumeric, func(i *catalog.Item) (float64, bool) { return optionalInt(i.ParentIndexNumber) })
	numberField("EpisodeNumber", KindNumeric, func(i *catalog.Item) (float64, bool) { return optionalInt(i.IndexNumber) })

	numberField("Resolution", KindResolution, func(i *catalog.Item) (float64, bool) {
		h := resolutionClass(i.Width, i.Height)
		return float64(h), h > 0
	})
	numberField("Framerate", KindFramerate, func(i *catalog.Item) (float64, bool) {
		return i.Framerate, i.Framerate > 0
	})

	dateField("DateCreated", func(i *catalog.Item) (time.Time, bool) { return i.DateCreated, !i.DateCreated.IsZero() })
	dateField("DateModified", func(i *catalog.Item) (time.Time, bool) { return i.DateModified, !i.DateModified.IsZero() })
	dateField("PremiereDate", func(i *catalog.Item) (time.Time, bool) { return optionalTime(i.PremiereDate) })

	register(Field{Name: "HasSubtitles", Kind: KindBoolean, flag: func(i *catalog.Item) bool { return i.HasSubtitles }})

	userField("IsPlayed", KindBoolean, func(d catalog.UserData) (any, bool) { return d.Played, true })
	userField("IsFavorite", KindBoolean, func(d catalog.UserData) (any, bool) { return d.IsFavorite, true })
	userField("PlayCount", KindNumeric, func(d catalog.UserData) (any, bool) { return float64(d.PlayCount), true })
	userField("LastPlayedDate", KindDate, func(d catalog.UserData) (any, bool) {
		t, ok := optionalTime(d.LastPlayedDate)
		return t, ok
	})
	// NextUnwatched needs series context and is resolved by the evaluator.
	register(Field{Name: FieldNextUnwatched, Kind: KindUserScoped, Scalar: KindBoolean})

	register(Field{Name: FieldSimilarTo, Kind: KindSimilarity})
}

func operatorSet(ops ...models.Operator) map[models.Operator]struct{} {
	set := make(map[models.Operator]struct{}, len(ops))
	for _, op := range ops {
		set[op] = struct{}{}
	}
	return set
}

var (
	numericOperators = []models.Operator{
		models.OpEquals, models.OpNotEquals,
		models.OpGreaterThan, models.OpGreaterOrEqual,
		models.OpLessThan, models.OpLessOrEqual,
		models.OpBetween,
	}

	allowedOperators = map[Kind]map[models.Operator]struct{}{
		KindString: operatorSet(
			models.OpEquals, models.OpNotEquals, models.OpContains, models.OpNotContains,
			models.OpStartsWith, models.OpEndsWith, models.OpIsIn, models.OpIsNotIn,
			models.OpMatchRegex,
		),
		KindSimpleEnum: operatorSet(models.OpEquals, models.OpNotEquals, models.OpIsIn, models.OpIsNotIn),
		KindStringList: operatorSet(
			models.OpEquals, models.OpNotEquals, models.OpContains, models.OpNotContains,
			models.OpIsIn, models.OpIsNotIn, models.OpMatchRegex,
		),
		KindNumeric:    operatorSet(numericOperators...),
		KindResolution: operatorSet(numericOperators...),
		KindFramerate:  operatorSet(numericOperators...),
		KindDate: operatorSet(slices.Concat(numericOperators, []models.Operator{
			models.OpAfter, models.OpBefore, models.OpNewerThan, models.OpOlderThan,
		})...),
		KindBoolean:    operatorSet(models.OpEquals, models.OpNotEquals),
		KindSimilarity: operatorSet(models.OpSimilarTo),
	}
)

// Lookup returns the field definition for a case-insensitive name.
func Lookup(name string) (Field, error) {
	f, ok := fieldTable[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Field{}, &UnknownFieldError{Field: name}
	}
	return f, nil
}

// Classify returns the kind of a field.
func Classify(name string) (Kind, error) {
	f, err := Lookup(name)
	if err != nil {
		return 0, err
	}
	return f.Kind, nil
}

// AllowedOperators lists the operators legal for a kind. User-scoped fields
// use the operators of their scalar kind, see OperatorsForField.
func AllowedOperators(kind Kind) []models.Operator {
	set := allowedOperators[kind]
	out := make([]models.Operator, 0, len(set))
	for op := range set {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OperatorsForField lists the operators legal for a field.
func OperatorsForField(name string) ([]models.Operator, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return AllowedOperators(f.CompareKind()), nil
}

// CheckOperator validates a field/operator pair.
func CheckOperator(field string, op models.Operator) error {
	f, err := Lookup(field)
	if err != nil {
		return err
	}
	if _, ok := allowedOperators[f.CompareKind()][op]; !ok {
		return fmt.Errorf("%w: %s does not support %s", ErrOperatorNotAllowed, f.Name, op)
	}
	return nil
}

// Fields returns every field sorted by name.
func Fields() []Field {
	out := make([]Field, 0, len(fieldTable))
	for _, f := range fieldTable {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
