// Package session runs one live voice session per WebSocket connection:
// audio ingest, speech recognition, voice command handling, assistant
// turns and transcript persistence, all serialized through a single loop.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alma-voice/alma/pkg/asr"
	"github.com/alma-voice/alma/pkg/assistant"
	"github.com/alma-voice/alma/pkg/gateway/live/protocol"
	"github.com/alma-voice/alma/pkg/gateway/live/sessions"
	"github.com/alma-voice/alma/pkg/gateway/stats"
	"github.com/alma-voice/alma/pkg/gateway/store"
)

// errBackpressure reports an outbound frame dropped because the client
// is not keeping up with the queue.
var errBackpressure = errors.New("outbound queue full")

// AssistantClient streams one chat completion. *assistant.Client
// implements it; tests substitute fakes.
type AssistantClient interface {
	Stream(ctx context.Context, dialog []assistant.Message, onDelta func(string)) (string, error)
}

type Config struct {
	SampleRate        int
	Channels          int
	BitDepth          int
	ExpectedChunkSize int

	SystemPrompt string
	WakePhrase   string
	StopPhrases  []string
	ResetPhrases []string

	AssistantModel      string
	TranscriptionEngine string

	// DispatchDebounce delays the assistant call after a final transcript
	// so rapid consecutive finals coalesce into one turn. Zero dispatches
	// immediately.
	DispatchDebounce time.Duration
	AckEveryN        int
	StatsInterval    time.Duration

	AudioDir          string
	ReadLimit         int64
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	OutboundQueueSize int
}

type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	Engine    asr.Engine // nil disables transcription
	Assistant AssistantClient
	Store     *store.Store
	Counters  *stats.Counters
	SessionID string
	Config    Config
}

type LiveSession struct {
	conn       *websocket.Conn
	logger     *slog.Logger
	engine     asr.Engine
	assistant  AssistantClient
	store      *store.Store
	counters   *stats.Counters
	sessionID  string
	cfg        Config
	classifier *Classifier

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan []byte

	// mu guards conversation and the counters below. The recognizer and
	// the recorder are owned by the run loop; their ready/active flags
	// are mirrored here for snapshots.
	mu              sync.Mutex
	conv            *conversation
	chunksReceived  int64
	bytesReceived   int64
	recording       bool
	recognizerReady bool
	turnCancel      context.CancelFunc

	recognizer asr.Recognizer
	rec        *recorder
	startedAt  time.Time
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

type turnResult struct {
	generation uint64
	text       string
	err        error
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Assistant == nil {
		return nil, fmt.Errorf("assistant client is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.SampleRate <= 0 {
		deps.Config.SampleRate = 16000
	}
	if deps.Config.Channels <= 0 {
		deps.Config.Channels = 1
	}
	if deps.Config.BitDepth <= 0 {
		deps.Config.BitDepth = 16
	}
	if deps.Config.AckEveryN <= 0 {
		deps.Config.AckEveryN = 10
	}
	if deps.Config.StatsInterval <= 0 {
		deps.Config.StatsInterval = 2 * time.Second
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &LiveSession{
		conn:       deps.Conn,
		logger:     deps.Logger,
		engine:     deps.Engine,
		assistant:  deps.Assistant,
		store:      deps.Store,
		counters:   deps.Counters,
		sessionID:  deps.SessionID,
		cfg:        deps.Config,
		classifier: NewClassifier(deps.Config.WakePhrase, deps.Config.StopPhrases, deps.Config.ResetPhrases),
		ctx:        ctx,
		cancel:     cancel,
		outbound:   make(chan []byte, deps.Config.OutboundQueueSize),
		conv:       newConversation(deps.Config.SystemPrompt),
		rec:        newRecorder(deps.Config.AudioDir, deps.Config.SampleRate, deps.Config.Channels, deps.Config.BitDepth),
		startedAt:  time.Now(),
	}
	return s, nil
}

// Cancel asks the session to shut down. Safe from any goroutine.
func (s *LiveSession) Cancel() {
	s.cancel()
}

// ResetConversation applies the administrative reset and reports whether
// there was anything to clear. Safe from any goroutine.
func (s *LiveSession) ResetConversation() bool {
	s.cancelTurn()
	s.mu.Lock()
	had := s.conv.reset()
	s.mu.Unlock()
	if had {
		_ = s.sendJSON(protocol.ServerConversationReset{Type: "conversation_reset", Message: "conversación reiniciada"})
		s.sendConversationState()
	}
	return had
}

// Snapshot reports the session's current state. Safe from any goroutine.
func (s *LiveSession) Snapshot() sessions.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.conv.state()
	return sessions.Snapshot{
		SessionID:      s.sessionID,
		Active:         st.Active,
		MessageCount:   st.MessageCount,
		DurationMS:     st.DurationMS,
		HasHistory:     st.HasHistory,
		Recording:      s.recording,
		ChunksReceived: s.chunksReceived,
	}
}

// Run drives the session until the client disconnects or the session is
// canceled. It owns the connection and every per-session resource.
func (s *LiveSession) Run() error {
	defer s.cancel()

	if s.cfg.ReadLimit > 0 {
		s.conn.SetReadLimit(s.cfg.ReadLimit)
	}

	if s.engine != nil {
		rec, err := s.engine.NewRecognizer(s.cfg.SampleRate)
		if err != nil {
			s.logger.Warn("recognizer init failed, transcription disabled", "error", err)
		} else {
			s.recognizer = rec
			s.mu.Lock()
			s.recognizerReady = true
			s.mu.Unlock()
		}
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:           s.conn,
			ctx:          s.ctx,
			outbound:     s.outbound,
			pingInterval: s.cfg.PingInterval,
			writeTimeout: s.cfg.WriteTimeout,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	s.mu.Lock()
	ready := s.recognizerReady
	s.mu.Unlock()
	connected := protocol.ServerConnected{
		Type:                  "connected",
		Message:               "conexión establecida",
		SampleRate:            s.cfg.SampleRate,
		Channels:              s.cfg.Channels,
		BitDepth:              s.cfg.BitDepth,
		ExpectedChunkSize:     s.cfg.ExpectedChunkSize,
		SupportsTranscription: ready,
		AssistantModel:        s.cfg.AssistantModel,
		WakePhrase:            s.cfg.WakePhrase,
	}
	if ready {
		connected.TranscriptionEngine = s.cfg.TranscriptionEngine
	}
	_ = s.sendJSON(connected)

	statsTicker := time.NewTicker(s.cfg.StatsInterval)
	defer statsTicker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	var (
		lastPartial     string
		recognitionDown bool
		recognizerFreed bool
		turnDoneCh      = make(chan turnResult, 4)
		dispatchTimer   *time.Timer
		dispatchCh      <-chan time.Time
		dispatchGen     uint64
	)

	disableRecognition := func(stage string, err error) {
		if recognitionDown {
			return
		}
		recognitionDown = true
		s.mu.Lock()
		s.recognizerReady = false
		s.mu.Unlock()
		s.logger.Warn("recognition disabled for session", "stage", stage, "error", err)
	}

	startTurn := func() {
		s.mu.Lock()
		dialog := s.conv.snapshotDialog()
		generation := s.conv.generation
		prev := s.turnCancel
		var turnCtx context.Context
		turnCtx, s.turnCancel = context.WithCancel(s.ctx)
		s.mu.Unlock()
		if prev != nil {
			prev()
		}

		_ = s.sendJSON(protocol.ServerAssistantStatus{Type: "assistant_status", Status: "thinking"})
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := s.assistant.Stream(turnCtx, dialog, func(delta string) {
				_ = s.sendJSON(protocol.ServerAssistantText{Type: "assistant_text", Delta: delta})
			})
			select {
			case turnDoneCh <- turnResult{generation: generation, text: text, err: err}:
			case <-s.ctx.Done():
			}
		}()
	}

	scheduleDispatch := func() {
		if s.cfg.DispatchDebounce <= 0 {
			startTurn()
			return
		}
		s.mu.Lock()
		dispatchGen = s.conv.generation
		s.mu.Unlock()
		if dispatchTimer != nil {
			dispatchTimer.Stop()
		}
		dispatchTimer = time.NewTimer(s.cfg.DispatchDebounce)
		dispatchCh = dispatchTimer.C
	}

	cancelDispatch := func() {
		if dispatchTimer != nil {
			dispatchTimer.Stop()
			dispatchTimer = nil
		}
		dispatchCh = nil
	}

	finishTurn := func(res turnResult) {
		_ = s.sendJSON(protocol.ServerAssistantStatus{Type: "assistant_status", Status: "idle"})
		if res.err != nil {
			if errors.Is(res.err, context.Canceled) {
				s.logger.Debug("assistant turn canceled", "generation", res.generation)
				return
			}
			s.logger.Warn("assistant turn failed", "error", res.err)
			_ = s.sendJSON(protocol.ServerAssistantError{Type: "assistant_error", Error: res.err.Error()})
			return
		}

		_ = s.sendJSON(protocol.ServerAssistantTextDone{Type: "assistant_text_done", Text: res.text})
		s.mu.Lock()
		appended := s.conv.appendAssistant(res.generation, res.text)
		s.mu.Unlock()
		if !appended {
			s.logger.Debug("stale assistant completion discarded", "generation", res.generation)
			return
		}
		s.sendConversationState()
	}

	handleFinal := func(final asr.FinalResult) {
		text := strings.TrimSpace(final.Text)
		if text == "" {
			return
		}
		lastPartial = ""
		s.counters.TranscriptionFinalized()
		_ = s.sendJSON(protocol.ServerTranscription{Type: "transcription", Text: text, IsFinal: true, Confidence: final.Confidence})

		s.mu.Lock()
		active := s.conv.active
		s.mu.Unlock()
		cmd := s.classifier.Classify(text, active)

		switch cmd.Action {
		case ActionActivate:
			s.mu.Lock()
			s.conv.activate()
			if cmd.Question != "" {
				s.conv.appendUser(cmd.Question)
			}
			s.mu.Unlock()
			s.logger.Info("conversation activated", "question", cmd.Question)
			_ = s.sendJSON(protocol.ServerVoiceCommandDetected{Type: "voice_command_detected", Action: cmd.Action.String(), Command: cmd.Phrase, Text: text})
			s.sendConversationState()
			if cmd.Question != "" {
				scheduleDispatch()
			}
		case ActionDeactivate:
			cancelDispatch()
			s.cancelTurn()
			s.mu.Lock()
			s.conv.deactivate()
			s.mu.Unlock()
			s.logger.Info("conversation deactivated", "command", cmd.Phrase)
			_ = s.sendJSON(protocol.ServerVoiceCommandDetected{Type: "voice_command_detected", Action: cmd.Action.String(), Command: cmd.Phrase, Text: text})
			s.sendConversationState()
		case ActionReset:
			cancelDispatch()
			s.cancelTurn()
			s.mu.Lock()
			s.conv.reset()
			s.mu.Unlock()
			s.logger.Info("conversation reset by voice command")
			_ = s.sendJSON(protocol.ServerVoiceCommandDetected{Type: "voice_command_detected", Action: cmd.Action.String(), Command: cmd.Phrase, Text: text})
			_ = s.sendJSON(protocol.ServerConversationReset{Type: "conversation_reset", Message: "conversación reiniciada"})
			s.sendConversationState()
		default:
			s.mu.Lock()
			if s.conv.active {
				s.conv.appendUser(text)
				s.mu.Unlock()
				scheduleDispatch()
			} else {
				s.conv.bufferText(text)
				s.mu.Unlock()
			}
		}
	}

	handleAudioChunk := func(msg protocol.ClientAudioChunk) {
		pcm := msg.PCMBytes()

		s.mu.Lock()
		s.chunksReceived++
		s.bytesReceived += int64(len(pcm))
		chunks := s.chunksReceived
		bytes := s.bytesReceived
		recording := s.recording
		s.mu.Unlock()
		s.counters.AddChunks(1)

		if err := s.rec.write(pcm); err != nil {
			s.logger.Warn("recording disabled for session", "error", err)
			_ = s.sendJSON(protocol.ServerAudioError{Type: "audio_error", Error: "audio write failed, recording disabled"})
		}

		if s.recognizer != nil && !recognitionDown {
			boundary, err := s.recognizer.Accept(pcm)
			switch {
			case err != nil:
				disableRecognition("accept", err)
			case boundary:
				final, err := s.recognizer.Result()
				if err != nil {
					disableRecognition("result", err)
				} else {
					handleFinal(final)
				}
			default:
				partial, err := s.recognizer.Partial()
				if err != nil {
					disableRecognition("partial", err)
				} else if partial != "" && partial != lastPartial {
					lastPartial = partial
					_ = s.sendJSON(protocol.ServerTranscription{Type: "transcription", Text: partial, IsFinal: false})
				}
			}
		}

		if chunks%int64(s.cfg.AckEveryN) == 0 {
			_ = s.sendJSON(protocol.ServerAudioAck{
				Type:           "audio_ack",
				ChunksReceived: chunks,
				TotalBytes:     bytes,
				Recording:      recording,
				TimestampMS:    time.Now().UnixMilli(),
			})
		}
	}

	handleStopRecording := func() {
		name, bytes, err := s.rec.stop()
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("closing audio file failed", "file", name, "error", err)
		}
		if name != "" {
			s.logger.Info("recording stopped", "file", name, "bytes", bytes)
			s.persistTranscript(name)
		}

		s.mu.Lock()
		var question string
		if !s.conv.active {
			question = s.conv.flushBuffer()
			if question != "" {
				s.conv.appendUser(question)
			}
		}
		s.mu.Unlock()
		if question != "" {
			s.logger.Info("flushing buffered speech", "question", question)
			scheduleDispatch()
		}
	}

	handleMessage := func(data []byte) {
		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			_ = s.sendJSON(protocol.ServerAudioError{Type: "audio_error", Error: err.Error()})
			return
		}
		switch m := msg.(type) {
		case protocol.ClientAudioChunk:
			handleAudioChunk(m)
		case protocol.ClientStartRecording:
			if s.rec.active() {
				s.logger.Debug("start_recording while already recording")
				return
			}
			if err := s.rec.start(); err != nil {
				s.logger.Warn("starting recording failed", "error", err)
				_ = s.sendJSON(protocol.ServerAudioError{Type: "audio_error", Error: "could not open audio file"})
				return
			}
			s.mu.Lock()
			s.recording = true
			s.mu.Unlock()
			s.logger.Info("recording started")
		case protocol.ClientStopRecording:
			handleStopRecording()
		case protocol.ClientGetFinalTranscription:
			if s.recognizer == nil || recognitionDown {
				return
			}
			final, err := s.recognizer.FinalResult()
			if err != nil {
				disableRecognition("final", err)
				return
			}
			handleFinal(final)
		case protocol.ClientResetConversation:
			cancelDispatch()
			s.cancelTurn()
			s.mu.Lock()
			s.conv.reset()
			s.mu.Unlock()
			_ = s.sendJSON(protocol.ServerConversationReset{Type: "conversation_reset", Message: "conversación reiniciada"})
			s.sendConversationState()
		case protocol.ClientGetConversationState:
			s.sendConversationState()
		}
	}

	var teardownOnce sync.Once
	teardown := func() {
		teardownOnce.Do(func() {
			cancelDispatch()
			s.cancelTurn()

			if s.recognizer != nil && !recognizerFreed {
				recognizerFreed = true
				if !recognitionDown {
					if final, err := s.recognizer.FinalResult(); err == nil && strings.TrimSpace(final.Text) != "" {
						_ = s.sendJSON(protocol.ServerTranscription{Type: "transcription", Text: strings.TrimSpace(final.Text), IsFinal: true, Confidence: final.Confidence})
					}
				}
				if err := s.recognizer.Close(); err != nil {
					s.logger.Warn("freeing recognizer failed", "error", err)
				}
			}

			name, _, err := s.rec.stop()
			if err != nil {
				s.logger.Warn("closing audio file failed", "file", name, "error", err)
			}
			s.mu.Lock()
			s.recording = false
			hadState := name != "" || s.chunksReceived > 0 || len(s.conv.dialog) > 1
			s.mu.Unlock()
			if hadState {
				s.persistTranscript(name)
			}

			s.cancel()
		})
	}
	defer teardown()

	for {
		select {
		case <-s.ctx.Done():
			teardown()
			return nil
		case err := <-writerErrCh:
			teardown()
			if err != nil {
				s.logger.Debug("outbound writer stopped", "error", err)
			}
			return nil
		case frame, ok := <-readCh:
			if !ok {
				teardown()
				return nil
			}
			if frame.err != nil {
				teardown()
				if websocket.IsUnexpectedCloseError(frame.err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					return frame.err
				}
				return nil
			}
			if frame.messageType != websocket.TextMessage {
				_ = s.sendJSON(protocol.ServerAudioError{Type: "audio_error", Error: "unsupported frame type"})
				continue
			}
			handleMessage(frame.data)
		case <-statsTicker.C:
			s.sendServerStats()
		case <-dispatchCh:
			dispatchCh = nil
			// An administrative reset can land between scheduling and
			// firing; a moved generation abandons the dispatch.
			s.mu.Lock()
			gen := s.conv.generation
			s.mu.Unlock()
			if gen == dispatchGen {
				startTurn()
			}
		case res := <-turnDoneCh:
			finishTurn(res)
		}
	}
}

func (s *LiveSession) cancelTurn() {
	s.mu.Lock()
	cancel := s.turnCancel
	s.turnCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *LiveSession) persistTranscript(audioFile string) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	rec := store.Record{
		ConnectionID:       s.sessionID,
		StartedAt:          s.startedAt,
		EndedAt:            time.Now(),
		Dialog:             s.conv.snapshotDialog(),
		ChunksReceived:     s.chunksReceived,
		ConversationActive: s.conv.active,
		AudioFile:          audioFile,
		MessageCount:       len(s.conv.dialog) - 1,
	}
	s.mu.Unlock()

	id, err := s.store.Save(rec)
	if err != nil {
		s.logger.Warn("persisting transcript failed", "error", err)
		return
	}
	s.logger.Info("transcript persisted", "id", id, "messages", rec.MessageCount)
}

func (s *LiveSession) sendConversationState() {
	s.mu.Lock()
	st := s.conv.state()
	s.mu.Unlock()
	_ = s.sendJSON(protocol.ServerConversationState{Type: "conversation_state", ConversationState: st})
}

func (s *LiveSession) sendServerStats() {
	s.mu.Lock()
	st := s.conv.state()
	chunks := s.chunksReceived
	recording := s.recording
	ready := s.recognizerReady
	s.mu.Unlock()

	_ = s.sendJSON(protocol.ServerStats{
		Type:                "server_stats",
		ActiveConnections:   s.counters.ActiveConnections(),
		ChunksReceived:      chunks,
		DurationMS:          time.Since(s.startedAt).Milliseconds(),
		TotalTranscriptions: s.counters.TotalTranscriptions(),
		RecognizerReady:     ready,
		Recording:           recording,
		Conversation:        st,
	})
}

// sendJSON enqueues one frame for the outbound writer. It never blocks:
// a full queue drops the frame, so a stalled client cannot wedge the run
// loop or the teardown path behind it.
func (s *LiveSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.outbound <- payload:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return errBackpressure
	}
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}
