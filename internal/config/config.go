package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Company is one employer board on an ATS (greenhouse, lever,
// smartrecruiters).
type Company struct {
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
}

// Rule tags a job when any of its terms appears in the title or description.
type Rule struct {
	Tag string   `yaml:"tag"`
	Any []string `yaml:"any"`
}

// Paging overrides the ingest page settings for one source. Zero keeps the
// global value.
type Paging struct {
	PageSize int `yaml:"page_size,omitempty"`
	MaxPages int `yaml:"max_pages,omitempty"`
}

type Config struct {
	App struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Storage struct {
		Driver string `yaml:"driver"` // sqlite | postgres
		Path   string `yaml:"path"`   // sqlite file, relative to data_dir
		DSN    string `yaml:"dsn"`    // postgres
	} `yaml:"storage"`

	Ingest struct {
		PageSize          int           `yaml:"page_size"`
		MaxPages          int           `yaml:"max_pages"`
		Concurrency       int           `yaml:"concurrency"`
		FetchTimeout      time.Duration `yaml:"fetch_timeout"`
		RateLimitMaxWait  time.Duration `yaml:"rate_limit_max_wait"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"ingest"`

	Sources struct {
		Adzuna struct {
			Paging `yaml:",inline"`

			Enabled bool   `yaml:"enabled"`
			BaseURL string `yaml:"base_url,omitempty"`
			Country string `yaml:"country"`
			AppID   string `yaml:"app_id"`
			What    string `yaml:"what"`
			Where   string `yaml:"where"`
		} `yaml:"adzuna"`

		Arbeitnow struct {
			Paging `yaml:",inline"`

			Enabled bool   `yaml:"enabled"`
			BaseURL string `yaml:"base_url,omitempty"`
		} `yaml:"arbeitnow"`

		Greenhouse struct {
			Enabled   bool      `yaml:"enabled"`
			BaseURL   string    `yaml:"base_url,omitempty"`
			Companies []Company `yaml:"companies"`
		} `yaml:"greenhouse"`

		Lever struct {
			Enabled   bool      `yaml:"enabled"`
			BaseURL   string    `yaml:"base_url,omitempty"`
			Companies []Company `yaml:"companies"`
		} `yaml:"lever"`

		SmartRecruiters struct {
			Paging `yaml:",inline"`

			Enabled   bool      `yaml:"enabled"`
			BaseURL   string    `yaml:"base_url,omitempty"`
			Companies []Company `yaml:"companies"`
		} `yaml:"smartrecruiters"`

		Workday struct {
			Paging `yaml:",inline"`

			Enabled   bool      `yaml:"enabled"`
			Companies []Company `yaml:"companies"` // slug = full board url
		} `yaml:"workday"`

		HeadHunter struct {
			Paging `yaml:",inline"`

			Enabled  bool   `yaml:"enabled"`
			APIURL   string `yaml:"api_url,omitempty"`
			Text     string `yaml:"text"`
			Area     string `yaml:"area"`
			Schedule string `yaml:"schedule"`
		} `yaml:"headhunter"`

		Email struct {
			Enabled          bool     `yaml:"enabled"`
			IMAPHost         string   `yaml:"imap_host"`
			IMAPPort         int      `yaml:"imap_port"`
			Username         string   `yaml:"username"`
			Mailbox          string   `yaml:"mailbox"`
			SearchSubjectAny []string `yaml:"search_subject_any"`
			LookbackDays     int      `yaml:"lookback_days"`
			MaxMessages      int      `yaml:"max_messages"`
			MarkSeen         bool     `yaml:"mark_seen"`
		} `yaml:"email"`
	} `yaml:"sources"`

	Scoring struct {
		WeightCosine    float64  `yaml:"weight_cosine"`
		WeightOverlap   float64  `yaml:"weight_overlap"`
		IDFCorpusSource string   `yaml:"idf_corpus_source"` // background | live | none
		CorpusPath      string   `yaml:"corpus_path"`
		CorpusMaxJobs   int      `yaml:"corpus_max_jobs"`
		Skills          []string `yaml:"skills"`
		Boilerplate     []string `yaml:"boilerplate"`
		TagRules        []Rule   `yaml:"tag_rules"`
	} `yaml:"scoring"`

	Matching struct {
		RemoteOK       bool     `yaml:"remote_ok"`
		LocationsAllow []string `yaml:"locations_allow"`
		LocationsBlock []string `yaml:"locations_block"`
		MaxAgeDays     int      `yaml:"max_age_days"`
		TopK           int      `yaml:"top_k"`
		MinScore       float64  `yaml:"min_score"`
	} `yaml:"matching"`

	Logging struct {
		JSON  bool `yaml:"json"`
		Debug bool `yaml:"debug"`
	} `yaml:"logging"`
}

// Default is the configuration written by `engine config init` and used for
// every key a file leaves out.
func Default() Config {
	var c Config
	c.App.DataDir = defaultDataDir()

	c.Storage.Driver = "sqlite"
	c.Storage.Path = "jobs.db"

	c.Ingest.PageSize = 50
	c.Ingest.MaxPages = 5
	c.Ingest.Concurrency = 4
	c.Ingest.FetchTimeout = 5 * time.Second
	c.Ingest.RateLimitMaxWait = 10 * time.Second
	c.Ingest.RequestsPerSecond = 1
	c.Ingest.Burst = 2

	c.Sources.Adzuna.Country = "gb"
	c.Sources.Arbeitnow.Enabled = true
	c.Sources.Email.IMAPHost = "imap.gmail.com"
	c.Sources.Email.IMAPPort = 993
	c.Sources.Email.Mailbox = "INBOX"
	c.Sources.Email.SearchSubjectAny = []string{"hiring", "job alert", "new jobs"}
	c.Sources.Email.LookbackDays = 14
	c.Sources.Email.MaxMessages = 20
	c.Sources.Email.MarkSeen = true

	c.Scoring.WeightCosine = 0.3
	c.Scoring.WeightOverlap = 0.7
	c.Scoring.IDFCorpusSource = "background"
	c.Scoring.CorpusPath = "corpus.json"
	c.Scoring.CorpusMaxJobs = 5000
	c.Scoring.TagRules = []Rule{
		{Tag: "backend", Any: []string{"backend", "back-end", "api"}},
		{Tag: "platform", Any: []string{"platform", "sre", "devops", "infrastructure"}},
		{Tag: "data", Any: []string{"data engineer", "data scientist", "analytics"}},
	}

	c.Matching.RemoteOK = true
	c.Matching.MaxAgeDays = 30
	c.Matching.TopK = 20

	return c
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + string(os.PathSeparator) + "jobmatch"
	}
	return ".jobmatch"
}

// Load reads path over Default(), so keys absent from the file keep their
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
