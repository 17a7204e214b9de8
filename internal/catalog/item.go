/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"slices"
	"strings"
	"time"
)

// MediaType tags the kind of a catalog item.
type MediaType string

const (
	TypeMovie      MediaType = "Movie"
	TypeSeries     MediaType = "Series"
	TypeSeason     MediaType = "Season"
	TypeEpisode    MediaType = "Episode"
	TypeAudio      MediaType = "Audio"
	TypeMusicVideo MediaType = "MusicVideo"
	TypeVideo      MediaType = "Video"
	TypePhoto      MediaType = "Photo"
	TypeBook       MediaType = "Book"
	TypeAudioBook  MediaType = "AudioBook"
	TypeBoxSet     MediaType = "BoxSet"
)

var knownTypes = []MediaType{
	TypeMovie, TypeSeries, TypeSeason, TypeEpisode, TypeAudio, TypeMusicVideo,
	TypeVideo, TypePhoto, TypeBook, TypeAudioBook, TypeBoxSet,
}

// ParseMediaType resolves a media type name case-insensitively.
func ParseMediaType(name string) (MediaType, bool) {
	for _, t := range knownTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(name)) {
			return t, true
		}
	}
	return "", false
}

// KnownTypes lists every supported media type.
func KnownTypes() []MediaType {
	return slices.Clone(knownTypes)
}

// IsAudio reports whether the type is an audio-only kind.
func (t MediaType) IsAudio() bool {
	return t == TypeAudio || t == TypeAudioBook
}

// Person is a credited cast or crew member.
type Person struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Person roles.
const (
	RoleActor     = "Actor"
	RoleGuestStar = "GuestStar"
	RoleDirector  = "Director"
	RoleWriter    = "Writer"
	RoleProducer  = "Producer"
	RoleComposer  = "Composer"
)

// UserData is one user's personal state for an item.
type UserData struct {
	Played         bool
	IsFavorite     bool
	PlayCount      int
	LastPlayedDate *time.Time
}

// Item is a catalog entry as seen by the rule engine.
type Item struct {
	ID             string    `gorm:"type:varchar(64);primaryKey"`
	Name           string    `gorm:"type:varchar(512)"`
	SortName       string    `gorm:"type:varchar(512);index"`
	Type           MediaType `gorm:"type:varchar(32);index"`
	ParentID       string    `gorm:"type:varchar(64);index"`
	SeriesID       string    `gorm:"type:varchar(64);index"`
	SeriesName     string    `gorm:"type:varchar(512)"`
	Overview       string    `gorm:"type:text"`
	ProductionYear int
	DateCreated    time.Time
	DateModified   time.Time
	PremiereDate   *time.Time
	// Ratings are optional; nil means unrated.
	CommunityRating *float64
	CriticRating    *float64
	Runtime         time.Duration
	OfficialRating  string   `gorm:"type:varchar(32)"`
	Genres          []string `gorm:"serializer:json"`
	Tags            []string `gorm:"serializer:json"`
	Studios         []string `gorm:"serializer:json"`
	People          []Person `gorm:"serializer:json"`
	Artists         []string `gorm:"serializer:json"`
	AlbumArtists    []string `gorm:"serializer:json"`
	Album           string   `gorm:"type:varchar(512)"`
	AudioLanguages  []string `gorm:"serializer:json"`
	// Collections holds names of the box sets this item belongs to.
	Collections []string `gorm:"serializer:json"`
	// MemberIDs lists children of a box set.
	MemberIDs         []string `gorm:"serializer:json"`
	Width             int
	Height            int
	Framerate         float64
	VideoCodec        string `gorm:"type:varchar(32)"`
	AudioCodec        string `gorm:"type:varchar(32)"`
	Container         string `gorm:"type:varchar(32)"`
	HasSubtitles      bool
	HasImage          bool
	IndexNumber       *int
	ParentIndexNumber *int
	Path              string `gorm:"type:text"`

	UserData map[string]UserData `gorm:"-"`
}

// TableName pins the gorm table.
func (Item) TableName() string { return "catalog_items" }

// DataFor returns the personal data of a user for this item.
func (i *Item) DataFor(userID string) (UserData, bool) {
	if i.UserData == nil {
		return UserData{}, false
	}
	data, ok := i.UserData[userID]
	return data, ok
}

// PeopleWithRoles returns names of credited people, filtered by role when
// roles are given.
func (i *Item) PeopleWithRoles(roles ...string) []string {
	out := make([]string, 0, len(i.People))
	for _, p := range i.People {
		if len(roles) == 0 || slices.Contains(roles, p.Role) {
			out = append(out, p.Name)
		}
	}
	return out
}

// RuntimeMinutes is the item runtime in minutes.
func (i *Item) RuntimeMinutes() float64 {
	return i.Runtime.Minutes()
}

// Provider is the catalog collaborator queried by refreshes.
type Provider interface {
	// Query returns items visible to userID whose type is in types. When
	// recursive is false only top-level items are returned.
	Query(ctx context.Context, userID string, types []MediaType, recursive bool) ([]*Item, error)
}
