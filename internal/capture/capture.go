// Package capture holds the in-progress call form and sequences
// summarization, saving and clipboard copy.
package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/sav-assist/internal/calllog"
	"github.com/hpungsan/sav-assist/internal/clipboard"
	"github.com/hpungsan/sav-assist/internal/errors"
	"github.com/hpungsan/sav-assist/internal/logger"
)

// CopiedFor is how long Copied reports true after a copy.
const CopiedFor = 2 * time.Second

// Summarizer produces a CallSummary from notes.
type Summarizer interface {
	Summarize(ctx context.Context, notes string, eq calllog.Equipment) (calllog.CallSummary, error)
	DeepAnalyze(ctx context.Context, notes string, eq calllog.Equipment) (calllog.CallSummary, error)
}

// Appender owns the persisted collection.
type Appender interface {
	Append(ctx context.Context, entry calllog.CallLog) (calllog.CallLog, error)
}

// Form is a snapshot of the fields being edited.
type Form struct {
	PhoneNumber   string
	CustomerName  string
	RawNotes      string
	Equipment     calllog.Equipment
	TicketCreated bool
	TicketNumber  string

	// Pending is the summary awaiting save, nil until generated.
	Pending *calllog.CallSummary
}

// Options configures a Flow.
type Options struct {
	DefaultEquipment calllog.Equipment
	Clipboard        clipboard.Writer
	Logger           *logger.Logger

	// Now stamps saved logs; defaults to time.Now.
	Now func() time.Time
}

// Flow is one capture form. Methods are safe for concurrent use.
type Flow struct {
	summarizer Summarizer
	appender   Appender
	clip       clipboard.Writer
	log        *logger.Logger

	now   func() time.Time
	newID func() string

	mu          sync.Mutex
	form        Form
	summarizing bool
	copiedUntil time.Time
}

func New(s Summarizer, a Appender, opts Options) *Flow {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.System{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	eq := opts.DefaultEquipment
	if eq.Brand == "" {
		eq.Brand = calllog.Brands[0]
	}
	if eq.ProductType == "" {
		eq.ProductType = calllog.ProductTypes[0]
	}
	return &Flow{
		summarizer: s,
		appender:   a,
		clip:       opts.Clipboard,
		log:        opts.Logger.Component("capture"),
		now:        opts.Now,
		newID:      uuid.NewString,
		form:       Form{Equipment: eq},
	}
}

// Form returns a copy of the current fields.
func (f *Flow) Form() Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.form
	if f.form.Pending != nil {
		p := *f.form.Pending
		out.Pending = &p
	}
	return out
}

func (f *Flow) SetPhone(phone string) {
	f.mu.Lock()
	f.form.PhoneNumber = phone
	f.mu.Unlock()
}

func (f *Flow) SetCustomer(name string) {
	f.mu.Lock()
	f.form.CustomerName = name
	f.mu.Unlock()
}

func (f *Flow) SetNotes(notes string) {
	f.mu.Lock()
	f.form.RawNotes = notes
	f.mu.Unlock()
}

// SetEquipment replaces brand and product type. Values must be on the form lists.
func (f *Flow) SetEquipment(eq calllog.Equipment) error {
	if err := eq.Validate(); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	f.mu.Lock()
	f.form.Equipment = eq
	f.mu.Unlock()
	return nil
}

// SetTicket records whether a ticket was opened and its number.
func (f *Flow) SetTicket(created bool, number string) {
	f.mu.Lock()
	f.form.TicketCreated = created
	f.form.TicketNumber = number
	f.mu.Unlock()
}

// AppendTranscript adds a dictated fragment to the notes.
func (f *Flow) AppendTranscript(fragment string) {
	f.mu.Lock()
	f.form.RawNotes = calllog.AppendFragment(f.form.RawNotes, fragment)
	f.mu.Unlock()
}

// Summarizing reports whether a summary request is in flight.
func (f *Flow) Summarizing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summarizing
}

// RequestSummary generates the pending summary from the current notes,
// with the deep model when deep is set. On failure the form is unchanged.
func (f *Flow) RequestSummary(ctx context.Context, deep bool) (calllog.CallSummary, error) {
	f.mu.Lock()
	if strings.TrimSpace(f.form.RawNotes) == "" {
		f.mu.Unlock()
		return calllog.CallSummary{}, errors.NewInvalidRequest("les notes sont vides")
	}
	if f.summarizing {
		f.mu.Unlock()
		return calllog.CallSummary{}, errors.NewBusy("summarization")
	}
	f.summarizing = true
	notes, eq := f.form.RawNotes, f.form.Equipment
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.summarizing = false
		f.mu.Unlock()
	}()

	run := f.summarizer.Summarize
	if deep {
		run = f.summarizer.DeepAnalyze
	}
	summary, err := run(ctx, notes, eq)
	if err != nil {
		f.log.WithError(err).WithField("deep", deep).Error("summary request failed")
		switch {
		case errors.Is(err, errors.ErrRemoteFailure),
			errors.Is(err, errors.ErrCancelled),
			errors.Is(err, errors.ErrInvalidRequest):
			return calllog.CallSummary{}, err
		}
		return calllog.CallSummary{}, errors.NewRemoteFailure(err)
	}

	f.mu.Lock()
	f.form.Pending = &summary
	f.mu.Unlock()
	return summary, nil
}

// Save commits the form as a new CallLog and clears phone, customer,
// notes and the pending summary. Equipment and ticket fields are kept.
func (f *Flow) Save(ctx context.Context) (calllog.CallLog, error) {
	f.mu.Lock()
	form := f.form
	f.mu.Unlock()

	if strings.TrimSpace(form.PhoneNumber) == "" || strings.TrimSpace(form.CustomerName) == "" || form.Pending == nil {
		return calllog.CallLog{}, errors.NewInvalidRequest("veuillez remplir le téléphone, le nom du client et générer un résumé")
	}

	entry := calllog.CallLog{
		ID:            f.newID(),
		PhoneNumber:   form.PhoneNumber,
		CustomerName:  form.CustomerName,
		Timestamp:     f.now().UnixMilli(),
		RawNotes:      form.RawNotes,
		Summary:       *form.Pending,
		TicketCreated: form.TicketCreated,
	}
	if form.TicketCreated {
		entry.TicketNumber = strings.TrimSpace(form.TicketNumber)
	}

	saved, err := f.appender.Append(ctx, entry)
	if err != nil && errors.Is(err, errors.ErrInvalidRequest) {
		return calllog.CallLog{}, err
	}

	// The entry is in the collection even if persisting it failed.
	f.mu.Lock()
	f.form.PhoneNumber = ""
	f.form.CustomerName = ""
	f.form.RawNotes = ""
	f.form.Pending = nil
	f.mu.Unlock()

	if err != nil {
		f.log.WithError(err).WithField("id", saved.ID).Error("call saved in memory only")
	}
	return saved, err
}

// CopySummary writes the report for the pending summary to the clipboard
// and returns the text.
func (f *Flow) CopySummary() (string, error) {
	f.mu.Lock()
	form := f.form
	f.mu.Unlock()

	if form.Pending == nil {
		return "", errors.NewInvalidRequest("aucun résumé à copier")
	}

	ticket := ""
	if form.TicketCreated {
		ticket = strings.TrimSpace(form.TicketNumber)
	}
	text := calllog.CopyText(calllog.CopyInput{
		Summary:      *form.Pending,
		Equipment:    form.Equipment,
		CustomerName: form.CustomerName,
		PhoneNumber:  form.PhoneNumber,
		TicketNumber: ticket,
	})
	if err := f.clip.WriteAll(text); err != nil {
		f.log.WithError(err).Warn("clipboard write failed")
		return text, errors.NewInternal(err)
	}

	f.mu.Lock()
	f.copiedUntil = f.now().Add(CopiedFor)
	f.mu.Unlock()
	return text, nil
}

// Copied reports whether a copy happened within the last CopiedFor.
func (f *Flow) Copied() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now().Before(f.copiedUntil)
}
