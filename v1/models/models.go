package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/Aleph-Alpha/annotation-engine/v1/attribute"
)

type Project struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func (Project) TableName() string { return "projects" }

type User struct {
	ID       int64 `gorm:"primaryKey"`
	Username string
}

func (User) TableName() string { return "users" }

// Token is a user's API token, handed to algorithm containers.
type Token struct {
	Key     string `gorm:"primaryKey"`
	UserID  int64  `gorm:"uniqueIndex"`
	Created time.Time
}

func (Token) TableName() string { return "auth_tokens" }

type Membership struct {
	ID        int64 `gorm:"primaryKey"`
	ProjectID int64
	UserID    int64
}

func (Membership) TableName() string { return "memberships" }

// EntityType is the schema shared by the localization, state, media, file
// and leaf type tables. Only annotation types carry media type ids.
type EntityType struct {
	ID             int64 `gorm:"primaryKey"`
	ProjectID      int64
	Name           string
	AttributeTypes datatypes.JSONSlice[attribute.Definition] `gorm:"column:attribute_types;type:jsonb"`
	MediaTypeIDs   pq.Int64Array                             `gorm:"column:media_type_ids;type:bigint[]"`
}

// Schema returns the declared attribute definitions in order.
func (t EntityType) Schema() attribute.Schema {
	return attribute.Schema(t.AttributeTypes)
}

type Media struct {
	ID        int64 `gorm:"primaryKey"`
	ProjectID int64
	TypeID    int64
	Name      string
	ObjectKey string
	// OriginalKey points at the upload before transcoding, when kept.
	OriginalKey *string
	Attributes  datatypes.JSON `gorm:"type:jsonb"`
	Deleted     bool
}

func (Media) TableName() string { return "media" }

type Localization struct {
	ID               int64 `gorm:"primaryKey"`
	ProjectID        int64
	TypeID           int64
	MediaID          int64
	VersionID        *int64
	ParentID         *int64
	UserID           *int64
	CreatedByID      *int64
	ModifiedByID     *int64
	Frame            *int64
	X                *float64
	Y                *float64
	U                *float64
	V                *float64
	Width            *float64
	Height           *float64
	ElementalID      *string `gorm:"type:uuid"`
	Attributes       datatypes.JSON `gorm:"type:jsonb"`
	CreatedDatetime  time.Time
	ModifiedDatetime time.Time
	Deleted          bool
	VariantDeleted   bool
}

func (Localization) TableName() string { return "localizations" }

// State links to localizations through state_localizations and to media
// through state_media.
type State struct {
	ID               int64 `gorm:"primaryKey"`
	ProjectID        int64
	TypeID           int64
	VersionID        *int64
	ParentID         *int64
	UserID           *int64
	CreatedByID      *int64
	ModifiedByID     *int64
	Frame            *int64
	ElementalID      *string `gorm:"type:uuid"`
	Attributes       datatypes.JSON `gorm:"type:jsonb"`
	CreatedDatetime  time.Time
	ModifiedDatetime time.Time
	Deleted          bool
	VariantDeleted   bool
}

func (State) TableName() string { return "states" }

// Leaf is a node of a label hierarchy. Path is an ltree.
type Leaf struct {
	ID         int64 `gorm:"primaryKey"`
	ProjectID  int64
	TypeID     int64
	ParentID   *int64
	Name       string
	Path       string         `gorm:"type:ltree"`
	Attributes datatypes.JSON `gorm:"type:jsonb"`
	Deleted    bool
}

func (Leaf) TableName() string { return "leaves" }

// File is a project-level non-media file. Its type lives in the meta column.
type File struct {
	ID         int64 `gorm:"primaryKey"`
	ProjectID  int64
	MetaID     int64
	Name       string
	Path       string
	Attributes datatypes.JSON `gorm:"type:jsonb"`
	Deleted    bool
}

func (File) TableName() string { return "files" }

// Section is a saved media filter. Any combination of the three filters may
// be set; they are applied together.
type Section struct {
	ID                  int64 `gorm:"primaryKey"`
	ProjectID           int64
	Name                string
	TatorUserSections   *string        `gorm:"column:tator_user_sections"`
	ObjectSearch        datatypes.JSON `gorm:"type:jsonb"`
	RelatedObjectSearch datatypes.JSON `gorm:"type:jsonb"`
}

func (Section) TableName() string { return "sections" }

// HasObjectSearch reports whether an object search tree is stored.
func (s Section) HasObjectSearch() bool {
	return hasTree(s.ObjectSearch)
}

// HasRelatedObjectSearch reports whether a related object search tree is
// stored.
func (s Section) HasRelatedObjectSearch() bool {
	return hasTree(s.RelatedObjectSearch)
}

func hasTree(raw datatypes.JSON) bool {
	switch string(raw) {
	case "", "null", "{}":
		return false
	}
	return true
}

type Algorithm struct {
	ID          int64 `gorm:"primaryKey"`
	ProjectID   int64
	UserID      int64
	Name        string
	Image       string
	Registry    string
	Username    string
	Password    string
	NeedsGPU    bool           `gorm:"column:needs_gpu"`
	Arguments   datatypes.JSON `gorm:"type:jsonb"`
	SetupScript string
	// TeardownScript runs in the marshal image after the main phase.
	TeardownScript string
}

func (Algorithm) TableName() string { return "algorithms" }

// Job tracks one running workload. The row is deleted when the run ends.
type Job struct {
	ID          int64 `gorm:"primaryKey"`
	ProjectID   int64
	UserID      int64
	AlgorithmID *int64
	RunUID      string `gorm:"uniqueIndex"`
	GroupID     string
	PodName     string
	Phase       string
}

func (Job) TableName() string { return "jobs" }

const (
	ResultFinished = "FINISHED"
	ResultFailed   = "FAILED"
)

// AlgorithmResult is the durable record of one completed run.
type AlgorithmResult struct {
	ID             int64 `gorm:"primaryKey"`
	AlgorithmID    int64
	UserID         int64
	Started        time.Time
	Stopped        time.Time
	Result         string
	Message        string
	SetupLogKey    string
	MainLogKey     string
	TeardownLogKey string
	MediaIDs       pq.Int64Array `gorm:"column:media_ids;type:bigint[]"`
}

func (AlgorithmResult) TableName() string { return "algorithm_results" }

// Package is a downloadable archive built by the packager.
type Package struct {
	ID           int64 `gorm:"primaryKey"`
	ProjectID    int64
	CreatorID    int64
	Name         string
	Description  string
	UseOriginals bool
	ObjectKey    string
	Size         int64
	Created      time.Time
}

func (Package) TableName() string { return "packages" }
