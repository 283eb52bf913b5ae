package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/formpilot/internal/model"
)

// Collection names persisted by every backend.
const (
	CollectionAnswers      = "answers"
	CollectionQuestionKeys = "questionKeys"
	CollectionObservations = "observations"
	CollectionSiteSettings = "siteSettings"
	CollectionActivityLog  = "activityLog"
	CollectionPending      = "pendingObservations"
)

// Document names held in the key/value documents table.
const (
	DocUserConsent = "userConsent"
	DocAuthState   = "authState"
	DocLLMConfig   = "llmConfig"
	DocInstallID   = "installId"
)

// ErrNotFound is returned by single-entity getters and deletes when the
// entity does not exist.
var ErrNotFound = eris.New("store: not found")

// Store persists the knowledge collections. Implementations give no
// multi-key transactional guarantee beyond DeleteAnswer's cascade; callers
// read-then-write one logical unit at a time.
type Store interface {
	// Answers
	ListAnswers(ctx context.Context) ([]model.AnswerValue, error)
	ListAnswersByType(ctx context.Context, t model.Taxonomy) ([]model.AnswerValue, error)
	GetAnswer(ctx context.Context, id string) (*model.AnswerValue, error)
	PutAnswer(ctx context.Context, a model.AnswerValue) error
	DeleteAnswer(ctx context.Context, id string) error

	// Question keys
	ListQuestionKeys(ctx context.Context) ([]model.QuestionKey, error)
	GetQuestionKey(ctx context.Context, id string) (*model.QuestionKey, error)
	PutQuestionKey(ctx context.Context, q model.QuestionKey) error

	// Observations
	ListObservations(ctx context.Context, siteKey string) ([]model.Observation, error)
	FindObservation(ctx context.Context, siteKey, questionKeyID, answerID string) (*model.Observation, error)
	InsertObservation(ctx context.Context, o model.Observation) error

	// Pending observations
	ListPending(ctx context.Context, status model.PendingStatus) ([]model.PendingObservation, error)
	GetPending(ctx context.Context, id string) (*model.PendingObservation, error)
	FindPendingByDedupKey(ctx context.Context, dedupKey string) (*model.PendingObservation, error)
	PutPending(ctx context.Context, p model.PendingObservation) error
	DeletePending(ctx context.Context, id string) error

	// Site settings
	GetSiteSettings(ctx context.Context, siteKey string) (*model.SiteSettings, error)
	PutSiteSettings(ctx context.Context, s model.SiteSettings) error

	// Activity log
	AppendActivity(ctx context.Context, e model.ActivityEntry) error
	ListActivity(ctx context.Context, limit int) ([]model.ActivityEntry, error)

	// Documents
	GetDocument(ctx context.Context, name string) ([]byte, error)
	PutDocument(ctx context.Context, name string, data []byte) error
	DeleteDocument(ctx context.Context, name string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultActivityLimit = 100
