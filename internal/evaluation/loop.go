// Package evaluation runs the evaluation thread: it wakes on new
// vision or biometric data (or at a maximum rate of 10 Hz), drives
// VFE→BFE→FC→SC→SM sequentially, drops out-of-order samples per modality,
// and publishes on every commit. Modeled on the teacher's StreamConsumer
// loop (wisefido-sensor-fusion/internal/consumer/stream_consumer.go): the
// same metrics-snapshot and process-one-message-log-and-continue shape,
// generalized from Redis-Streams-only ingestion to a tick loop over the
// FFE's five ingress message kinds.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fatigue-fusion-engine/internal/biometric"
	"fatigue-fusion-engine/internal/clock"
	"fatigue-fusion-engine/internal/ffeerrors"
	"fatigue-fusion-engine/internal/fusion"
	"fatigue-fusion-engine/internal/ingress"
	"fatigue-fusion-engine/internal/model"
	"fatigue-fusion-engine/internal/stage"
	"fatigue-fusion-engine/internal/state"
	"fatigue-fusion-engine/internal/vision"

	"go.uber.org/zap"
)

const maxTickRate = 10 // Hz, the evaluation thread's wake ceiling.
const tickInterval = time.Second / maxTickRate

const serviceName = "ffe"

// Metrics mirrors the teacher's StreamConsumer.Metrics: plain counters
// behind a mutex, snapshotted rather than locked across a read. Grounded
// on wisefido-sensor-fusion/internal/consumer/stream_consumer.go's Metrics.
type Metrics struct {
	mu sync.RWMutex

	TicksProcessed      int64
	TicksSucceeded      int64
	TicksSkippedStale   int64
	TicksSkippedInvalid int64
	TicksOutOfOrder     int64
	StageChanges        int64
	CriticalEvents      int64
	StartTime           time.Time
}

func (m *Metrics) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		TicksProcessed:      m.TicksProcessed,
		TicksSucceeded:      m.TicksSucceeded,
		TicksSkippedStale:   m.TicksSkippedStale,
		TicksSkippedInvalid: m.TicksSkippedInvalid,
		TicksOutOfOrder:     m.TicksOutOfOrder,
		StageChanges:        m.StageChanges,
		CriticalEvents:      m.CriticalEvents,
		StartTime:           m.StartTime,
	}
}

func (m *Metrics) incProcessed()     { m.mu.Lock(); m.TicksProcessed++; m.mu.Unlock() }
func (m *Metrics) incSucceeded()     { m.mu.Lock(); m.TicksSucceeded++; m.mu.Unlock() }
func (m *Metrics) incStale()         { m.mu.Lock(); m.TicksSkippedStale++; m.mu.Unlock() }
func (m *Metrics) incInvalid()       { m.mu.Lock(); m.TicksSkippedInvalid++; m.mu.Unlock() }
func (m *Metrics) incOutOfOrder()    { m.mu.Lock(); m.TicksOutOfOrder++; m.mu.Unlock() }
func (m *Metrics) incStageChange()   { m.mu.Lock(); m.StageChanges++; m.mu.Unlock() }
func (m *Metrics) incCriticalEvent() { m.mu.Lock(); m.CriticalEvents++; m.mu.Unlock() }

// PilotContext supplies the SC/SM with the currently active pilot's
// sensitivity and ID, updated by a PilotProfileMessage out of band from
// the evaluation thread's own tick cadence.
type PilotContext struct {
	mu       sync.RWMutex
	profile  model.PilotProfile
	hasPilot bool
}

func (p *PilotContext) Set(profile model.PilotProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profile = profile
	p.hasPilot = true
}

func (p *PilotContext) Get() (model.PilotProfile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.profile, p.hasPilot
}

// Sink is where the evaluation loop publishes per-tick results — the
// bus-agnostic side of the data:fusion/data:fatigue_alert/state:current
// keys, satisfied in this repository by internal/bus.Sink, which wraps
// internal/bus.Store and internal/notify.Publisher.
type Sink interface {
	PublishFusion(ctx context.Context, out model.FusionOutput)
	PublishStateChange(ctx context.Context, snap model.StateSnapshot, fatigueStage model.FatigueStage, changed bool)
}

// Loop is the evaluation thread. Not safe for concurrent Run calls — one
// instance, one goroutine (FC and SC own private buffers, touched only
// here).
type Loop struct {
	oracle        *clock.Oracle
	visionExtract *vision.Extractor
	bioExtract    *biometric.Extractor
	fusionCore    *fusion.Core
	classifier    *stage.Classifier
	manager       *state.Manager
	pilots        *PilotContext
	sink          Sink
	logger        *zap.Logger
	metrics       *Metrics

	lastVisionTS float64
	haveVision   bool
	lastBioTS    float64
	haveBio      bool

	latestVision *model.VisionSample
	latestBio    *model.BioSample

	profiles PilotPersister

	Inbox chan ingress.Message
}

// PilotPersister durably stores a pilot profile update, satisfied by
// internal/repository.PilotProfileRepository. Optional: a Loop with no
// persister set simply keeps the update in memory via PilotContext.
type PilotPersister interface {
	Upsert(profile model.PilotProfile) error
}

// SetPilotPersister wires a durable store for pilot profile updates
// received over ingress; cmd/ffe/main.go calls this once after New.
func (l *Loop) SetPilotPersister(p PilotPersister) {
	l.profiles = p
}

// New builds a Loop wired to the already-constructed per-component
// instances; cmd/ffe/main.go owns their lifetime.
func New(
	oracle *clock.Oracle,
	visionExtract *vision.Extractor,
	bioExtract *biometric.Extractor,
	fusionCore *fusion.Core,
	classifier *stage.Classifier,
	manager *state.Manager,
	sink Sink,
	logger *zap.Logger,
) *Loop {
	return &Loop{
		oracle:        oracle,
		visionExtract: visionExtract,
		bioExtract:    bioExtract,
		fusionCore:    fusionCore,
		classifier:    classifier,
		manager:       manager,
		pilots:        &PilotContext{},
		sink:          sink,
		logger:        logger,
		metrics:       &Metrics{StartTime: time.Now()},
		Inbox:         make(chan ingress.Message, 256),
	}
}

// Pilots exposes the loop's pilot context so an ingress adapter can push
// PilotProfileMessage updates without routing them through Inbox (profile
// updates are out-of-band context, not a fusion input: alcohol overrides
// and pilot profile updates reach SM/FC context directly, not through
// the fusion pipeline).
func (l *Loop) Pilots() *PilotContext { return l.pilots }

// Manager exposes the State Manager so callers can read the current
// snapshot or register subscribers without going through the Sink.
func (l *Loop) Manager() *state.Manager { return l.manager }

func (l *Loop) Metrics() Metrics { return l.metrics.Snapshot() }

// Send enqueues a decoded ingress message for the evaluation thread,
// satisfying ingress.Sender. Blocking: a full Inbox means the evaluation
// thread is behind, and an adapter should feel that backpressure rather
// than silently drop data.
func (l *Loop) Send(msg ingress.Message) {
	l.Inbox <- msg
}

// Run drives the evaluation thread until ctx is cancelled, draining
// whatever is already queued in Inbox before returning.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.drain(ctx)
			return
		case msg := <-l.Inbox:
			l.handleMessage(ctx, msg)
		case <-ticker.C:
			l.evaluateTick(ctx)
		}
	}
}

// drain processes whatever is already buffered in Inbox without blocking.
func (l *Loop) drain(ctx context.Context) {
	for {
		select {
		case msg := <-l.Inbox:
			l.handleMessage(ctx, msg)
		default:
			return
		}
	}
}

func (l *Loop) handleMessage(ctx context.Context, msg ingress.Message) {
	switch m := msg.(type) {
	case ingress.VisionMessage:
		l.ingestVision(m.Sample)
	case ingress.BioMessage:
		l.ingestBio(m.Sample)
	case ingress.AlcoholMessage:
		l.manager.NoteAlcoholEvent(m.Event)
	case ingress.PilotProfileMessage:
		if m.Active {
			l.pilots.Set(m.Profile)
		}
		if l.profiles != nil {
			if err := l.profiles.Upsert(m.Profile); err != nil && l.logger != nil {
				l.logger.Warn("failed to persist pilot profile", zap.Error(err))
			}
		}
	case ingress.AlertStateMessage:
		if _, err := l.manager.SetState(m.State, m.Message, m.Service, nil, nil); err != nil && l.logger != nil {
			l.logger.Warn("rejected externally requested state transition",
				zap.String("target", string(m.State)), zap.Error(err))
		}
	}
	l.evaluateTick(ctx)
}

// ingestVision applies the per-modality monotonic-timestamp ordering
// guarantee: an out-of-order sample is dropped, not fused.
func (l *Loop) ingestVision(s model.VisionSample) {
	if l.haveVision && s.TimestampS < l.lastVisionTS {
		l.metrics.incOutOfOrder()
		return
	}
	l.lastVisionTS = s.TimestampS
	l.haveVision = true
	l.latestVision = &s
}

func (l *Loop) ingestBio(s model.BioSample) {
	if l.haveBio && s.TimestampS < l.lastBioTS {
		l.metrics.incOutOfOrder()
		return
	}
	l.lastBioTS = s.TimestampS
	l.haveBio = true
	l.latestBio = &s
}

// evaluateTick runs VFE→BFE→FC→SC→SM over whatever the latest samples are
// and publishes the result. A tick with neither modality present, or one
// whose only present modality has gone stale, is a no-op.
func (l *Loop) evaluateTick(ctx context.Context) {
	if l.latestVision == nil && l.latestBio == nil {
		return
	}
	l.metrics.incProcessed()

	var visionSample *model.VisionSample
	var visionRes *vision.Result
	if l.latestVision != nil {
		res, err := l.visionExtract.Extract(*l.latestVision)
		switch {
		case err == nil:
			visionSample = l.latestVision
			visionRes = &res
		case errors.Is(err, ffeerrors.ErrStaleSample):
			l.metrics.incStale()
		default:
			l.metrics.incInvalid()
		}
	}

	var bioSample *model.BioSample
	var bioRes *biometric.Result
	if l.latestBio != nil {
		res, err := l.bioExtract.Extract(*l.latestBio)
		switch {
		case err == nil:
			bioSample = l.latestBio
			bioRes = &res
		case errors.Is(err, ffeerrors.ErrStaleSample):
			l.metrics.incStale()
		default:
			l.metrics.incInvalid()
		}
	}

	tickTS := l.oracle.NowS()
	out, err := l.fusionCore.Fuse(fusion.Input{
		Vision:     visionSample,
		VisionRes:  visionRes,
		Bio:        bioSample,
		BioRes:     bioRes,
		TimestampS: tickTS,
	})
	if err != nil {
		l.metrics.incInvalid()
		return
	}

	l.sink.PublishFusion(ctx, out)

	if out.IsCriticalEvent {
		l.metrics.incCriticalEvent()
	}

	profile, hasPilot := l.pilots.Get()
	result := l.classifier.Classify(stage.Input{
		FusionOutput:        out,
		PilotSensitivity:    profile.Sensitivity,
		HasPilotSensitivity: hasPilot && profile.HasSensitivity,
		TimestampS:          tickTS,
	})
	if result.Changed {
		l.metrics.incStageChange()
	}

	var pilotID *string
	if hasPilot {
		pilotID = &profile.ID
	}
	message := fmt.Sprintf("fusion_score=%.3f confidence=%.3f stage=%s", out.FusionScore, out.Confidence, result.Stage.String())
	data := map[string]any{
		"fusion_score": out.FusionScore,
		"confidence":    out.Confidence,
		"window_avg":    result.AvgScore,
		"critical_path": result.CriticalPath,
	}
	snap, err := l.manager.SetFatigueStage(result.Stage, message, serviceName, pilotID, data)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("stage classifier proposed an unreachable state", zap.Error(err))
		}
		l.metrics.incInvalid()
		return
	}

	l.sink.PublishStateChange(ctx, snap, result.Stage, result.Changed)
	l.metrics.incSucceeded()
}
