package config

import (
	"fmt"
	"math"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// Err folds the errors into one, or nil.
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return fmt.Errorf("config validation failed:\n- %s", strings.Join(v.Errors, "\n- "))
}

// NormalizeAndValidate returns a normalized copy of cfg (trimmed, deduped
// lists) together with what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Matching.LocationsAllow = trimList(out.Matching.LocationsAllow)
	out.Matching.LocationsBlock = trimList(out.Matching.LocationsBlock)
	out.Sources.Email.SearchSubjectAny = trimList(out.Sources.Email.SearchSubjectAny)
	out.Scoring.Skills = trimList(out.Scoring.Skills)
	out.Scoring.Boilerplate = trimList(out.Scoring.Boilerplate)
	out.Storage.Driver = strings.ToLower(strings.TrimSpace(out.Storage.Driver))
	out.Scoring.IDFCorpusSource = strings.ToLower(strings.TrimSpace(out.Scoring.IDFCorpusSource))

	// ---- storage ----
	switch out.Storage.Driver {
	case "", "sqlite":
		out.Storage.Driver = "sqlite"
		if strings.TrimSpace(out.Storage.Path) == "" {
			res.addErr("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(out.Storage.DSN) == "" {
			res.addErr("storage.dsn is required for the postgres driver")
		}
	default:
		res.addErr("storage.driver must be sqlite or postgres, got %q", out.Storage.Driver)
	}

	// ---- ingest ----
	if out.Ingest.PageSize <= 0 {
		res.addErr("ingest.page_size must be > 0")
	}
	if out.Ingest.MaxPages <= 0 {
		res.addErr("ingest.max_pages must be > 0")
	} else if out.Ingest.MaxPages > 100 {
		res.addWarn("ingest.max_pages is very high (%d); one run may take a long time.", out.Ingest.MaxPages)
	}
	if out.Ingest.Concurrency <= 0 {
		res.addErr("ingest.concurrency must be > 0")
	}
	if out.Ingest.FetchTimeout <= 0 {
		res.addErr("ingest.fetch_timeout must be > 0")
	}
	if out.Ingest.RateLimitMaxWait < 0 {
		res.addErr("ingest.rate_limit_max_wait must be >= 0")
	}
	if out.Ingest.RequestsPerSecond <= 0 {
		res.addWarn("ingest.requests_per_second <= 0 disables rate limiting.")
	}

	// ---- sources ----
	s := out.Sources
	if !s.Adzuna.Enabled && !s.Arbeitnow.Enabled && !s.Greenhouse.Enabled && !s.Lever.Enabled &&
		!s.SmartRecruiters.Enabled && !s.Workday.Enabled && !s.HeadHunter.Enabled && !s.Email.Enabled {
		res.addWarn("no sources enabled; ingest will do nothing.")
	}
	if s.Adzuna.Enabled && strings.TrimSpace(s.Adzuna.AppID) == "" {
		res.addErr("sources.adzuna.app_id is required when adzuna is enabled")
	}
	checkCompanies := func(name string, enabled bool, cs []Company) {
		if !enabled {
			return
		}
		if len(cs) == 0 {
			res.addWarn("sources.%s is enabled but has no companies.", name)
		}
		for i, c := range cs {
			if strings.TrimSpace(c.Slug) == "" {
				res.addErr("sources.%s.companies[%d].slug is required", name, i)
			}
		}
	}
	checkCompanies("greenhouse", s.Greenhouse.Enabled, s.Greenhouse.Companies)
	checkCompanies("lever", s.Lever.Enabled, s.Lever.Companies)
	checkCompanies("smartrecruiters", s.SmartRecruiters.Enabled, s.SmartRecruiters.Companies)
	checkCompanies("workday", s.Workday.Enabled, s.Workday.Companies)
	if s.Workday.Enabled {
		for i, c := range s.Workday.Companies {
			if slug := strings.TrimSpace(c.Slug); slug != "" && !strings.HasPrefix(slug, "http") {
				res.addErr("sources.workday.companies[%d].slug must be the full board url", i)
			}
		}
	}

	// password not required here; it's in the keychain
	if s.Email.Enabled {
		if strings.TrimSpace(s.Email.IMAPHost) == "" {
			res.addErr("sources.email.imap_host is required when email is enabled")
		}
		if s.Email.IMAPPort == 0 {
			res.addErr("sources.email.imap_port is required when email is enabled")
		}
		if strings.TrimSpace(s.Email.Username) == "" {
			res.addErr("sources.email.username is required when email is enabled")
		}
		if len(s.Email.SearchSubjectAny) == 0 {
			res.addWarn("sources.email.search_subject_any is empty; every unseen message will be parsed.")
		}
	}

	// ---- scoring ----
	sc := out.Scoring
	if sc.WeightCosine < 0 || sc.WeightOverlap < 0 {
		res.addErr("scoring weights must be >= 0")
	} else if math.Abs(sc.WeightCosine+sc.WeightOverlap-1) > 1e-9 {
		res.addErr("scoring.weight_cosine + scoring.weight_overlap must equal 1 (got %.4f)", sc.WeightCosine+sc.WeightOverlap)
	}
	switch sc.IDFCorpusSource {
	case "", "background", "live", "none":
	default:
		res.addErr("scoring.idf_corpus_source must be background, live or none, got %q", sc.IDFCorpusSource)
	}
	if sc.IDFCorpusSource == "live" {
		res.addWarn("idf_corpus_source=live makes scores drift as new jobs are ingested.")
	}
	for i, r := range sc.TagRules {
		if strings.TrimSpace(r.Tag) == "" {
			res.addErr("scoring.tag_rules[%d].tag is required", i)
		}
		if len(r.Any) == 0 {
			res.addErr("scoring.tag_rules[%d].any must have at least 1 term", i)
		}
		for j, term := range r.Any {
			if strings.TrimSpace(term) == "" {
				res.addErr("scoring.tag_rules[%d].any[%d] cannot be empty", i, j)
			}
		}
	}

	// ---- matching ----
	m := out.Matching
	if m.TopK < 0 {
		res.addErr("matching.top_k must be >= 0")
	}
	if m.MinScore < 0 || m.MinScore > 1 {
		res.addErr("matching.min_score must be within [0,1]")
	}
	if m.MaxAgeDays < 0 {
		res.addErr("matching.max_age_days must be >= 0")
	}
	if !m.RemoteOK && len(m.LocationsAllow) == 0 {
		res.addWarn("remote_ok is false and locations_allow is empty; you may filter out almost everything.")
	}
	if len(m.LocationsAllow) > 50 {
		res.addWarn("locations_allow has %d entries; consider tightening it for faster filtering.", len(m.LocationsAllow))
	}

	blockSet := map[string]bool{}
	for _, b := range m.LocationsBlock {
		blockSet[strings.ToLower(b)] = true
	}
	for _, a := range m.LocationsAllow {
		if blockSet[strings.ToLower(a)] {
			res.addWarn("location appears in both allow and block: %q", a)
		}
	}

	return out, res
}
