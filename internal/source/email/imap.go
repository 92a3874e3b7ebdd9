package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Message is a minimal representation of an alert email.
type Message struct {
	UID     uint32
	From    string
	Subject string
	Date    time.Time

	// Raw is the full RFC822 message (headers + body), fetched with
	// BODY.PEEK[] so it doesn't set \Seen.
	Raw []byte
}

// Mailbox is the part of an IMAP session the adapter needs.
type Mailbox interface {
	Unseen(ctx context.Context, since time.Time, max int) ([]Message, error)
	MarkSeen(ctx context.Context, uids []uint32) error
	Close() error
}

// IMAPConfig addresses one mailbox.
type IMAPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	Mailbox  string
	TLS      *tls.Config
}

// DialIMAP connects over TLS, logs in and selects the mailbox.
func DialIMAP(ctx context.Context, cfg IMAPConfig) (Mailbox, error) {
	if cfg.Addr == "" {
		return nil, errors.New("imap addr is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("imap username/password is required")
	}
	tlsCfg := cfg.TLS
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	c, err := imapclient.DialTLS(cfg.Addr, &imapclient.Options{TLSConfig: tlsCfg})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// Closing the connection is the only way to interrupt a pending command.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()

	if err := c.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		close(done)
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}

	name := cfg.Mailbox
	if name == "" {
		name = "INBOX"
	}
	if _, err := c.Select(name, &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		close(done)
		_ = c.Close()
		return nil, fmt.Errorf("imap select %s: %w", name, err)
	}
	return &imapMailbox{c: c, done: done}, nil
}

type imapMailbox struct {
	c    *imapclient.Client
	done chan struct{}
}

// Unseen pulls up to max unseen messages received since the cutoff, newest
// first.
func (m *imapMailbox) Unseen(ctx context.Context, since time.Time, max int) ([]Message, error) {
	if max <= 0 {
		max = 50
	}
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
		Since:   since,
	}
	searchData, err := m.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search unseen: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return []Message{}, nil
	}
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > max {
		uids = uids[:max]
	}

	bodyAll := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	fetchCmd := m.c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodyAll},
	})
	defer func() { _ = fetchCmd.Close() }()

	out := make([]Message, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}

		msg := Message{UID: uint32(buf.UID)}
		if buf.Envelope != nil {
			msg.Subject = buf.Envelope.Subject
			msg.Date = buf.Envelope.Date
			msg.From = joinAddrs(buf.Envelope.From)
		}
		if msg.Date.IsZero() {
			msg.Date = buf.InternalDate
		}
		if b := buf.FindBodySection(bodyAll); b != nil {
			msg.Raw = append([]byte(nil), b...)
		}
		if (msg.Subject == "" || msg.From == "") && len(msg.Raw) > 0 {
			subj, from, date := parseHeadersFallback(msg.Raw)
			if msg.Subject == "" {
				msg.Subject = subj
			}
			if msg.From == "" {
				msg.From = from
			}
			if msg.Date.IsZero() {
				msg.Date = date
			}
		}
		out = append(out, msg)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}
	return out, nil
}

// MarkSeen sets \Seen on the given UIDs. Store returns a FetchCommand whose
// Close reports the final status.
func (m *imapMailbox) MarkSeen(_ context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	set := make([]imap.UID, 0, len(uids))
	for _, u := range uids {
		set = append(set, imap.UID(u))
	}
	cmd := m.c.Store(imap.UIDSetNum(set...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap store add seen: %w", err)
	}
	return nil
}

// Close logs out then closes the connection.
func (m *imapMailbox) Close() error {
	close(m.done)
	logoutErr := m.c.Logout().Wait()
	closeErr := m.c.Close()
	if logoutErr != nil {
		return fmt.Errorf("imap logout: %w", logoutErr)
	}
	return closeErr
}

func joinAddrs(addrs []imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for i := range addrs {
		a := &addrs[i]
		s := strings.TrimSpace(a.Addr())
		if name := strings.TrimSpace(a.Name); name != "" {
			s = fmt.Sprintf("%q <%s>", name, s)
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// parseHeadersFallback reads the basic headers with net/mail when the
// envelope is missing them.
func parseHeadersFallback(raw []byte) (subject, from string, date time.Time) {
	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	if err != nil {
		return "", "", time.Time{}
	}
	h := msg.Header
	subject = decodeRFC2047(h.Get("Subject"))
	from = h.Get("From")
	if ds := h.Get("Date"); ds != "" {
		if t, err := mail.ParseDate(ds); err == nil {
			date = t
		}
	}
	_, _ = io.Copy(io.Discard, msg.Body)
	return subject, from, date
}
