package project

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a project.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus normalizes a user supplied status string.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	}
	return "", false
}

// Stage names a pipeline stage. For a processing project the recorded stage is
// the last completed checkpoint; for a failed project it is the failing stage.
type Stage string

const (
	StageNone                Stage = ""
	StageIngest              Stage = "Ingest"
	StageTranscribe          Stage = "Transcribe"
	StageAnalyze             Stage = "Analyze"
	StageGenerateVideoAssets Stage = "GenerateVideoAssets"
	StageGenerateTextAssets  Stage = "GenerateTextAssets"
	StageFinalize            Stage = "Finalize"
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{
	StageIngest,
	StageTranscribe,
	StageAnalyze,
	StageGenerateVideoAssets,
	StageGenerateTextAssets,
	StageFinalize,
}

var stagePercent = map[Stage]int{
	StageNone:                0,
	StageIngest:              5,
	StageTranscribe:          15,
	StageAnalyze:             35,
	StageGenerateVideoAssets: 65,
	StageGenerateTextAssets:  85,
	StageFinalize:            100,
}

// Percent returns the progress recorded once the stage completes.
func (s Stage) Percent() int {
	return stagePercent[s]
}

// Index returns the stage's position in Stages, or -1 for StageNone and unknown values.
func (s Stage) Index() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s. StageNone is followed by StageIngest.
func (s Stage) Next() (Stage, bool) {
	idx := s.Index()
	if s != StageNone && idx < 0 {
		return StageNone, false
	}
	if idx+1 >= len(Stages) {
		return StageNone, false
	}
	return Stages[idx+1], true
}

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// ContentCategory is the declared kind of source video.
type ContentCategory string

const (
	CategoryTestimonial  ContentCategory = "testimonial"
	CategoryCaseStudy    ContentCategory = "case_study"
	CategoryFounderStory ContentCategory = "founder_story"
)

// ParseCategory normalizes a category, defaulting to testimonial when empty.
func ParseCategory(value string) (ContentCategory, bool) {
	switch ContentCategory(strings.ToLower(strings.TrimSpace(value))) {
	case "", CategoryTestimonial:
		return CategoryTestimonial, true
	case CategoryCaseStudy:
		return CategoryCaseStudy, true
	case CategoryFounderStory:
		return CategoryFounderStory, true
	}
	return "", false
}

// Project is a single source video and its processing state.
type Project struct {
	ID              string
	SourcePath      string
	Category        ContentCategory
	Status          Status
	Stage           Stage
	ProgressPercent int
	ErrorMessage    string
	CancelRequested bool
	MediaPath       string
	DurationSeconds float64
	SizeBytes       int64
	ManifestJSON    string
	RunOwner        string
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a copy safe to hand to readers outside the run lock.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.LastHeartbeat != nil {
		hb := *p.LastHeartbeat
		cp.LastHeartbeat = &hb
	}
	return &cp
}

// Segment is a timed span of transcript text.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Transcript is the timed text of a project's audio.
type Transcript struct {
	ProjectID string
	FullText  string
	Language  string
	Segments  []Segment
	CreatedAt time.Time
}

// Duration returns the end of the last segment.
func (t *Transcript) Duration() float64 {
	if t == nil {
		return 0
	}
	var end float64
	for _, seg := range t.Segments {
		if seg.End > end {
			end = seg.End
		}
	}
	return end
}

// MomentCategory classifies a narrative moment.
type MomentCategory string

const (
	MomentProblem       MomentCategory = "problem"
	MomentSolution      MomentCategory = "solution"
	MomentResult        MomentCategory = "result"
	MomentEmotionalPeak MomentCategory = "emotional_peak"
	MomentCTA           MomentCategory = "cta"
	MomentGeneral       MomentCategory = "general"
)

// ParseMomentCategory maps free-form model output onto a known category.
func ParseMomentCategory(value string) MomentCategory {
	switch MomentCategory(strings.ToLower(strings.TrimSpace(value))) {
	case MomentProblem:
		return MomentProblem
	case MomentSolution:
		return MomentSolution
	case MomentResult:
		return MomentResult
	case MomentEmotionalPeak:
		return MomentEmotionalPeak
	case MomentCTA:
		return MomentCTA
	default:
		return MomentGeneral
	}
}

// Moment is a time-bounded, scored span of the transcript.
type Moment struct {
	ID          string
	ProjectID   string
	Ordinal     int
	Start       float64
	End         float64
	Category    MomentCategory
	Text        string
	Summary     string
	Sentiment   float64
	Importance  float64
	Quotable    string
	Quotability float64
	Fallback    bool
	CreatedAt   time.Time
}

// Duration returns End - Start.
func (m Moment) Duration() float64 {
	return m.End - m.Start
}

// AssetKind names a derivative asset type.
type AssetKind string

const (
	AssetVideoClip     AssetKind = "video_clip"
	AssetVideoMicro    AssetKind = "video_micro"
	AssetVideoVertical AssetKind = "video_vertical"
	AssetQuoteCard     AssetKind = "quote_card"
	AssetEmail         AssetKind = "email"
	AssetSocialPost    AssetKind = "social_post"
	AssetBlogOutline   AssetKind = "blog_outline"
)

// AssetStatus tracks an individual asset.
type AssetStatus string

const (
	AssetPending    AssetStatus = "pending"
	AssetProcessing AssetStatus = "processing"
	AssetCompleted  AssetStatus = "completed"
	AssetFailed     AssetStatus = "failed"
)

// Asset is a single derivative output. Key is unique per project so re-running
// a stage replaces the prior row instead of appending.
type Asset struct {
	ID           string
	ProjectID    string
	Key          string
	UnitKey      string
	MomentID     string
	Kind         AssetKind
	Title        string
	Content      string
	FilePath     string
	FileURL      string
	Format       string
	Duration     float64
	Width        int
	Height       int
	Status       AssetStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
