package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chalkvoice/chalkvoice/internal/grading"
	"github.com/chalkvoice/chalkvoice/internal/observe"
	"github.com/chalkvoice/chalkvoice/internal/roster"
	"github.com/chalkvoice/chalkvoice/pkg/provider/asr"
)

// defaultTranscribeTimeout bounds one transcription round trip. Crossing it
// yields [KindTranscriptionTimeout] so the caller can offer typed input.
const defaultTranscribeTimeout = 15 * time.Second

// Context carries the session selections a spoken command may rely on
// implicitly: the date attendance is recorded against and the exam marks are
// recorded against when the command itself names none.
type Context struct {
	// Date is the active session date in YYYY-MM-DD form. Required for
	// attendance commands.
	Date string

	// Exam is the assessment selected for the session. Used as fallback when
	// a marks command does not name one; may be empty.
	Exam roster.Exam
}

// Confirmation echoes back exactly what one successful command changed. Only
// one of Attendance and Marks is set, matching the command's intent.
type Confirmation struct {
	Student    roster.Student           `json:"student"`
	Attendance *roster.AttendanceRecord `json:"attendance,omitempty"`
	Marks      *roster.ExamRecord       `json:"marks,omitempty"`
	Message    string                   `json:"message"`
}

// ProcessorOption is a functional option for configuring a [Processor].
type ProcessorOption func(*Processor)

// WithASR sets the transcription provider used by [Processor.ProcessAudio].
// Without one, audio commands are rejected.
func WithASR(p asr.Provider) ProcessorOption {
	return func(pr *Processor) { pr.asr = p }
}

// WithTranscribeTimeout bounds a single transcription round trip.
// Default: 15s.
func WithTranscribeTimeout(d time.Duration) ProcessorOption {
	return func(pr *Processor) { pr.transcribeTimeout = d }
}

// WithLogger sets the structured logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) ProcessorOption {
	return func(pr *Processor) { pr.log = log }
}

// WithMetrics sets the metrics instance the pipeline records into.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ProcessorOption {
	return func(pr *Processor) { pr.metrics = m }
}

// Processor runs the full command pipeline: transcription (for audio input),
// intent extraction, student resolution, score validation, and the single
// coordinated write. Failures at any stage surface as an [*Error] carrying
// the taxonomy [Kind]; nothing is written on failure.
type Processor struct {
	extractor   *Extractor
	resolver    *roster.Resolver
	coordinator *Coordinator
	store       roster.Store

	asr               asr.Provider
	transcribeTimeout time.Duration
	log               *slog.Logger
	metrics           *observe.Metrics
}

// NewProcessor wires a [Processor] over store, resolving references with
// resolver and writing through its own [Coordinator].
func NewProcessor(store roster.Store, resolver *roster.Resolver, opts ...ProcessorOption) *Processor {
	p := &Processor{
		extractor:         NewExtractor(),
		resolver:          resolver,
		coordinator:       NewCoordinator(store),
		store:             store,
		transcribeTimeout: defaultTranscribeTimeout,
		log:               slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// ProcessAudio transcribes audio and processes the resulting transcript as
// one command. The transcription round trip is bounded by the configured
// timeout; crossing it returns an [*Error] of kind [KindTranscriptionTimeout].
func (p *Processor) ProcessAudio(ctx context.Context, audio []byte, sess Context) (Confirmation, error) {
	if p.asr == nil {
		return Confirmation{}, errors.New("command: no transcription provider configured")
	}

	tctx, cancel := context.WithTimeout(ctx, p.transcribeTimeout)
	defer cancel()

	start := time.Now()
	transcript, err := p.asr.Transcribe(tctx, audio)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			p.metrics.RecordTranscription(ctx, elapsed, "timeout")
			p.log.Warn("transcription timed out",
				"timeout", p.transcribeTimeout, "elapsed", elapsed)
			return Confirmation{}, &Error{Kind: KindTranscriptionTimeout, err: err}
		}
		p.metrics.RecordTranscription(ctx, elapsed, "error")
		return Confirmation{}, fmt.Errorf("transcribing command audio: %w", err)
	}
	p.metrics.RecordTranscription(ctx, elapsed, "ok")
	p.log.Debug("transcribed command audio",
		"transcript", transcript, "elapsed", elapsed)

	return p.process(ctx, transcript, sess, "audio")
}

// Process runs one transcript through extraction, resolution, validation and
// the write, returning the confirmation of what changed. All pipeline
// failures are an [*Error]; use [KindOf] to classify them.
func (p *Processor) Process(ctx context.Context, transcript string, sess Context) (Confirmation, error) {
	return p.process(ctx, transcript, sess, "text")
}

func (p *Processor) process(ctx context.Context, transcript string, sess Context, source string) (Confirmation, error) {
	ctx, span := observe.StartCommandSpan(ctx, source)
	defer span.End()
	start := time.Now()

	intent, err := p.extractor.Extract(transcript)
	if err != nil {
		p.metrics.RecordCommand(ctx, "unknown", outcomeLabel(err))
		span.SetAttributes(observe.Attr("command.outcome", outcomeLabel(err)))
		return Confirmation{}, err
	}

	var (
		conf Confirmation
		name string
	)
	switch in := intent.(type) {
	case AttendanceIntent:
		name = "attendance"
		conf, err = p.processAttendance(ctx, in, sess)
	case MarksIntent:
		name = "marks"
		conf, err = p.processMarks(ctx, in, sess)
	default:
		return Confirmation{}, unparseable(ReasonNoCommand)
	}

	p.metrics.RecordCommandDuration(ctx, time.Since(start), name)
	p.metrics.RecordCommand(ctx, name, outcomeLabel(err))
	span.SetAttributes(
		observe.Attr("command.intent", name),
		observe.Attr("command.outcome", outcomeLabel(err)),
	)
	return conf, err
}

func (p *Processor) processAttendance(ctx context.Context, in AttendanceIntent, sess Context) (Confirmation, error) {
	if !roster.ValidDate(sess.Date) {
		return Confirmation{}, unparseable(ReasonMissingDate)
	}

	student, err := p.resolveReference(ctx, in.Reference)
	if err != nil {
		return Confirmation{}, err
	}

	rec, err := p.coordinator.ApplyAttendance(ctx, student.ID, sess.Date, in.Status)
	if err != nil {
		return Confirmation{}, err
	}
	p.metrics.RecordStoreWrite(ctx, "attendance")

	p.log.Info("attendance recorded",
		"usn", student.USN, "date", rec.Date, "status", rec.Status)
	return Confirmation{
		Student:    student,
		Attendance: &rec,
		Message:    fmt.Sprintf("%s (%s) marked %s for %s", student.Name, student.USN, rec.Status, rec.Date),
	}, nil
}

func (p *Processor) processMarks(ctx context.Context, in MarksIntent, sess Context) (Confirmation, error) {
	exam := in.Exam
	if exam == "" {
		exam = sess.Exam
	}
	if !exam.IsValid() {
		return Confirmation{}, unparseable(ReasonMissingExam)
	}

	student, err := p.resolveReference(ctx, in.Reference)
	if err != nil {
		return Confirmation{}, err
	}

	validated, err := grading.Validate(in.Scores)
	if err != nil {
		return Confirmation{}, gradingError(err)
	}

	rec, err := p.coordinator.ApplyMarks(ctx, student.ID, exam, validated)
	if err != nil {
		return Confirmation{}, err
	}
	p.metrics.RecordStoreWrite(ctx, "marks")

	p.log.Info("marks recorded",
		"usn", student.USN, "exam", rec.Exam, "total", rec.Total)
	return Confirmation{
		Student: student,
		Marks:   &rec,
		Message: fmt.Sprintf("%s (%s) %s recorded, total %d/%d", student.Name, student.USN, rec.Exam, rec.Total, grading.MaxTotal),
	}, nil
}

// resolveReference maps a raw student reference to a roster entry, translating
// resolver failures into the command error taxonomy.
func (p *Processor) resolveReference(ctx context.Context, reference string) (roster.Student, error) {
	students, err := p.store.ListStudents(ctx)
	if err != nil {
		return roster.Student{}, fmt.Errorf("listing students for resolution: %w", err)
	}

	student, err := p.resolver.Resolve(reference, students)
	if err != nil {
		var amb *roster.AmbiguityError
		switch {
		case errors.As(err, &amb):
			p.metrics.RecordResolution(ctx, "ambiguous")
			return roster.Student{}, &Error{Kind: KindAmbiguousMatch, Candidates: amb.Candidates, err: err}
		case errors.Is(err, roster.ErrNoMatch):
			p.metrics.RecordResolution(ctx, "no_match")
			return roster.Student{}, &Error{Kind: KindNoMatch, err: err}
		default:
			return roster.Student{}, err
		}
	}
	p.metrics.RecordResolution(ctx, "resolved")
	return student, nil
}

// outcomeLabel maps one pipeline result to the metric and span label: "ok",
// a taxonomy kind, or "error" for non-command failures.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := KindOf(err); ok {
		return string(kind)
	}
	return "error"
}

// gradingError maps the validator's typed errors onto command error kinds.
func gradingError(err error) error {
	var (
		count *grading.WrongItemCountError
		pair  *grading.PairConflictError
		rng   *grading.ScoreOutOfRangeError
	)
	switch {
	case errors.As(err, &count):
		return &Error{Kind: KindWrongItemCount, err: err}
	case errors.As(err, &pair):
		return &Error{Kind: KindPairConflict, err: err}
	case errors.As(err, &rng):
		return &Error{Kind: KindScoreOutOfRange, err: err}
	default:
		return err
	}
}
