package ingest

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/config"
	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/secrets"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/adzuna"
	"jobmatch-engine/internal/source/arbeitnow"
	"jobmatch-engine/internal/source/email"
	"jobmatch-engine/internal/source/greenhouse"
	"jobmatch-engine/internal/source/headhunter"
	"jobmatch-engine/internal/source/lever"
	"jobmatch-engine/internal/source/smartrecruiters"
	"jobmatch-engine/internal/source/util"
	"jobmatch-engine/internal/source/workday"
)

// emailFetchTimeout covers login, search and download of a whole mailbox
// page.
const emailFetchTimeout = 2 * time.Minute

// SecretFunc resolves a credential. secrets.Get is the default.
type SecretFunc func(secrets.Secret) (string, error)

// Sources builds the enabled adapters from cfg. A source whose credentials
// are missing is still returned; its fetches fail with SourceUnavailable so
// the run summary reports it.
func Sources(cfg config.Config, getSecret SecretFunc, log *zap.Logger) []Source {
	if getSecret == nil {
		getSecret = secrets.Get
	}
	if log == nil {
		log = zap.NewNop()
	}
	limiter := util.NewHostLimiter(cfg.Ingest.RequestsPerSecond, cfg.Ingest.Burst)
	client := source.NewClient(cfg.Ingest.FetchTimeout, limiter, log)
	sc := cfg.Sources

	var out []Source

	if sc.Adzuna.Enabled {
		key, err := getSecret(secrets.AdzunaAppKey(sc.Adzuna.AppID))
		var a source.Adapter = adzuna.New(adzuna.Config{
			BaseURL: sc.Adzuna.BaseURL,
			Country: sc.Adzuna.Country,
			AppID:   sc.Adzuna.AppID,
			AppKey:  key,
			What:    sc.Adzuna.What,
			Where:   sc.Adzuna.Where,
		}, client)
		if err != nil {
			a = unavailable{name: adzuna.Name, err: err}
		}
		out = append(out, Source{Adapter: a, PageSize: sc.Adzuna.PageSize, MaxPages: sc.Adzuna.MaxPages})
	}

	if sc.Arbeitnow.Enabled {
		out = append(out, Source{
			Adapter:  arbeitnow.New(arbeitnow.Config{BaseURL: sc.Arbeitnow.BaseURL}, client),
			PageSize: sc.Arbeitnow.PageSize,
			MaxPages: sc.Arbeitnow.MaxPages,
		})
	}

	if sc.Greenhouse.Enabled {
		if cos := companies(sc.Greenhouse.Companies); len(cos) > 0 {
			gh := make([]greenhouse.Company, 0, len(cos))
			for _, c := range cos {
				gh = append(gh, greenhouse.Company{Slug: c.Slug, Name: c.Name})
			}
			out = append(out, Source{Adapter: greenhouse.New(greenhouse.Config{BaseURL: sc.Greenhouse.BaseURL, Companies: gh}, client)})
		} else {
			log.Warn("greenhouse enabled without companies")
		}
	}

	if sc.Lever.Enabled {
		if cos := companies(sc.Lever.Companies); len(cos) > 0 {
			lv := make([]lever.Company, 0, len(cos))
			for _, c := range cos {
				lv = append(lv, lever.Company{Slug: c.Slug, Name: c.Name})
			}
			out = append(out, Source{Adapter: lever.New(lever.Config{BaseURL: sc.Lever.BaseURL, Companies: lv}, client)})
		} else {
			log.Warn("lever enabled without companies")
		}
	}

	if sc.SmartRecruiters.Enabled {
		if cos := companies(sc.SmartRecruiters.Companies); len(cos) > 0 {
			sr := make([]smartrecruiters.Company, 0, len(cos))
			for _, c := range cos {
				sr = append(sr, smartrecruiters.Company{Slug: c.Slug, Name: c.Name})
			}
			// One page per company; the page size drives the offset paging
			// inside each board.
			out = append(out, Source{
				Adapter:  smartrecruiters.New(smartrecruiters.Config{BaseURL: sc.SmartRecruiters.BaseURL, Companies: sr}, client),
				PageSize: sc.SmartRecruiters.PageSize,
			})
		} else {
			log.Warn("smartrecruiters enabled without companies")
		}
	}

	if sc.Workday.Enabled {
		if cos := companies(sc.Workday.Companies); len(cos) > 0 {
			wd := make([]workday.Company, 0, len(cos))
			for _, c := range cos {
				wd = append(wd, workday.Company{Slug: c.Slug, Name: c.Name})
			}
			out = append(out, Source{
				Adapter:  workday.New(workday.Config{Companies: wd}, client),
				PageSize: sc.Workday.PageSize,
			})
		} else {
			log.Warn("workday enabled without companies")
		}
	}

	if sc.HeadHunter.Enabled {
		// Anonymous search works without a token.
		token, _ := getSecret(secrets.HeadHunterToken())
		out = append(out, Source{
			Adapter: headhunter.New(headhunter.Config{
				APIURL:   sc.HeadHunter.APIURL,
				Token:    token,
				Text:     sc.HeadHunter.Text,
				Area:     sc.HeadHunter.Area,
				Schedule: sc.HeadHunter.Schedule,
			}, client),
			PageSize: sc.HeadHunter.PageSize,
			MaxPages: sc.HeadHunter.MaxPages,
		})
	}

	if sc.Email.Enabled {
		e := sc.Email
		var a source.Adapter
		pw, err := getSecret(secrets.IMAPPassword(e.Username, e.IMAPHost))
		if err != nil {
			a = unavailable{name: email.Name, err: err}
		} else {
			a = email.New(email.Config{
				IMAP: email.IMAPConfig{
					Addr:     net.JoinHostPort(e.IMAPHost, strconv.Itoa(e.IMAPPort)),
					Username: e.Username,
					Password: pw,
					Mailbox:  e.Mailbox,
				},
				SubjectAny:  e.SearchSubjectAny,
				Lookback:    time.Duration(e.LookbackDays) * 24 * time.Hour,
				MaxMessages: e.MaxMessages,
				MarkSeen:    e.MarkSeen,
			}, nil, log.With(zap.String("source", email.Name)))
		}
		out = append(out, Source{Adapter: a, MaxPages: 1, FetchTimeout: emailFetchTimeout})
	}

	return out
}

// companies drops blank slugs and defaults names to the slug.
func companies(in []config.Company) []config.Company {
	out := make([]config.Company, 0, len(in))
	for _, c := range in {
		slug := strings.TrimSpace(c.Slug)
		if slug == "" {
			continue
		}
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = slug
		}
		out = append(out, config.Company{Slug: slug, Name: name})
	}
	return out
}

// unavailable stands in for a source that could not be set up.
type unavailable struct {
	name string
	err  error
}

func (u unavailable) Name() string { return u.name }

func (u unavailable) Fetch(context.Context, source.Page) (source.Batch, error) {
	return source.Batch{}, &domain.SourceUnavailableError{Source: u.name, Err: fmt.Errorf("not configured: %w", u.err)}
}

func (u unavailable) Map(source.RawPayload) (domain.Job, error) {
	return domain.Job{}, domain.Malformed(u.name, "", "source not configured")
}
