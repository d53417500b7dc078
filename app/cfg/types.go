package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath       string
	SourcesDir   string
	OPMLPath     string
	OutputPath   string
	TempNewsPath string

	// Fetching
	UserAgent        string
	FetchTimeout     time.Duration
	RequestInterval  time.Duration
	MaxItemsPerFeed  int
	SubtitleMaxRunes int
	RedisAddr        string
	FeedCacheTTL     time.Duration

	// Summarization
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	PromptFile      string
	SummaryInterval time.Duration
	SummaryTimeout  time.Duration

	// Mail delivery
	SMTPServer       string
	SMTPUsername     string
	SMTPPassword     string
	SenderEmail      string
	ReceiverEmail    string
	SMTPPrimaryPort  int
	SMTPFallbackPort int
	SMTPTimeout      time.Duration

	// Digest archive
	ArchiveBucket string
	ArchiveRegion string
	ArchivePrefix string

	// Scheduling and HTTP
	Schedule     string
	Port         string
	APIAccessKey string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
