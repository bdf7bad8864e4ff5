package core

import "time"

// Hit is one search result, optionally carrying fetched page content.
type Hit struct {
	URL              string    `yaml:"url" json:"url"`
	Title            string    `yaml:"title" json:"title"`
	Snippet          string    `yaml:"snippet" json:"snippet"`
	Content          string    `yaml:"content,omitempty" json:"content,omitempty"`
	RetrievedAt      time.Time `yaml:"retrieved_at" json:"retrieved_at"`
	Loop             int       `yaml:"loop" json:"loop"`
	FetchedContent   bool      `yaml:"fetched_content" json:"fetched_content"`
	RobotsDisallowed bool      `yaml:"robots_disallowed" json:"robots_disallowed"`
}

// AgentState is the single mutable record threaded through every stage
// (spec §3.1). It is owned exclusively by one Orchestrator.Run invocation.
type AgentState struct {
	UserPrompt string
	Language   string

	QueryCount int

	Queries          []string
	FollowUpQueries  []string
	ExecutedQueries  []string

	QueryResults    map[string][]Hit
	ProcessedNotes  map[string]string

	DraftReport     string
	ValidatedReport string

	LoopCount     int
	MinValidation int
	MaxValidation int

	MinSources int
	MaxSources int

	QualityScore       float64
	QualityThreshold   float64
	ValidationComplete bool

	ErrorLog []string
}

// NewAgentState builds the initial state for a run from a prompt and the
// resolved configuration bounds.
func NewAgentState(prompt string, cfg *Config) *AgentState {
	return &AgentState{
		UserPrompt:       prompt,
		Language:         cfg.Language,
		QueryCount:       cfg.QueryCount,
		QueryResults:     make(map[string][]Hit),
		ProcessedNotes:   make(map[string]string),
		MinValidation:    cfg.MinValidation,
		MaxValidation:    cfg.MaxValidation,
		MinSources:       cfg.MinSources,
		MaxSources:       cfg.MaxSources,
		QualityThreshold: cfg.QualityThreshold,
	}
}

// AppendDiagnostic records a non-fatal diagnostic into error_log.
func (s *AgentState) AppendDiagnostic(msg string) {
	s.ErrorLog = append(s.ErrorLog, msg)
}

// StateDelta is a partial view of AgentState returned by a stage. Fields
// left as nil/zero are untouched by Merge; each stage only sets what it
// actually computed (Design Notes: "dynamic state record" -> typed product
// plus partial-view deltas).
type StateDelta struct {
	UserPrompt *string

	Queries         []string
	FollowUpQueries []string
	ClearFollowUps  bool
	ExecutedQueries []string

	QueryResults   map[string][]Hit
	AppendResults  bool
	ProcessedNotes map[string]string

	DraftReport     *string
	ValidatedReport *string

	IncrementLoop      bool
	QualityScore       *float64
	ValidationComplete *bool

	ErrorLog []string
}

// Merge applies d onto s in place, field by field. Only non-nil/non-empty
// delta fields overwrite state; everything else is left untouched.
func (d StateDelta) Merge(s *AgentState) {
	if d.UserPrompt != nil {
		s.UserPrompt = *d.UserPrompt
	}
	if d.Queries != nil {
		s.Queries = d.Queries
	}
	if d.ClearFollowUps {
		s.FollowUpQueries = nil
	} else if d.FollowUpQueries != nil {
		s.FollowUpQueries = d.FollowUpQueries
	}
	if d.ExecutedQueries != nil {
		s.ExecutedQueries = append(s.ExecutedQueries, d.ExecutedQueries...)
	}
	if d.QueryResults != nil {
		if s.QueryResults == nil {
			s.QueryResults = make(map[string][]Hit)
		}
		for q, hits := range d.QueryResults {
			if d.AppendResults {
				s.QueryResults[q] = append(s.QueryResults[q], hits...)
			} else {
				s.QueryResults[q] = hits
			}
		}
	}
	if d.ProcessedNotes != nil {
		if s.ProcessedNotes == nil {
			s.ProcessedNotes = make(map[string]string)
		}
		for q, notes := range d.ProcessedNotes {
			s.ProcessedNotes[q] = notes
		}
	}
	if d.DraftReport != nil {
		s.DraftReport = *d.DraftReport
	}
	if d.ValidatedReport != nil {
		s.ValidatedReport = *d.ValidatedReport
	}
	if d.IncrementLoop {
		s.LoopCount++
	}
	if d.QualityScore != nil {
		s.QualityScore = *d.QualityScore
	}
	if d.ValidationComplete != nil {
		s.ValidationComplete = *d.ValidationComplete
	}
	if d.ErrorLog != nil {
		s.ErrorLog = append(s.ErrorLog, d.ErrorLog...)
	}
}
