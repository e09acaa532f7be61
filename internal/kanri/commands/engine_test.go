package commands_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/Kanri/internal/kanri/catalog"
	"github.com/bdobrica/Kanri/internal/kanri/commands"
	"github.com/bdobrica/Kanri/internal/kanri/dialogue"
	"github.com/bdobrica/Kanri/internal/kanri/humanizer"
	"github.com/bdobrica/Kanri/internal/kanri/nlp"
	"github.com/bdobrica/Kanri/internal/kanri/tasks"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

// stubStore is an in-memory TaskStore that records every call.
type stubStore struct {
	mu    sync.Mutex
	tasks []tasks.Task
	calls []string
	err   error
	hang  bool // block until the call's context is done
}

func newStubStore() *stubStore {
	return &stubStore{tasks: []tasks.Task{
		{Index: 1, ID: 11, Title: "Revisar relatório", Status: tasks.StatusPending},
		{Index: 2, ID: 12, Title: "Ligar pro cliente", Status: tasks.StatusInProgress},
		{Index: 3, ID: 13, Title: "Enviar proposta", Status: tasks.StatusBlocked, BlockedReason: "sem acesso"},
		{Index: 4, ID: 14, Title: "Atualizar planilha", Status: tasks.StatusDone},
	}}
}

func (s *stubStore) enter(ctx context.Context, call string) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	hang, err := s.hang, s.err
	s.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (s *stubStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubStore) ListTasks(ctx context.Context, _ string) ([]tasks.Task, error) {
	if err := s.enter(ctx, "list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tasks.Task(nil), s.tasks...), nil
}

func (s *stubStore) mark(ctx context.Context, name string, indices []int, st tasks.Status) ([]tasks.Task, error) {
	if err := s.enter(ctx, fmt.Sprintf("%s %v", name, indices)); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range indices {
		if i < 1 || i > len(s.tasks) {
			return nil, &tasks.NotFoundError{Index: i}
		}
	}
	var out []tasks.Task
	for _, i := range indices {
		s.tasks[i-1].Status = st
		out = append(out, s.tasks[i-1])
	}
	return out, nil
}

func (s *stubStore) MarkDone(ctx context.Context, _ string, indices []int) ([]tasks.Task, error) {
	return s.mark(ctx, "mark_done", indices, tasks.StatusDone)
}

func (s *stubStore) MarkInProgress(ctx context.Context, _ string, indices []int) ([]tasks.Task, error) {
	return s.mark(ctx, "mark_in_progress", indices, tasks.StatusInProgress)
}

func (s *stubStore) MarkBlocked(ctx context.Context, _ string, index int, reason string) (tasks.Task, error) {
	if err := s.enter(ctx, fmt.Sprintf("mark_blocked %d %s", index, reason)); err != nil {
		return tasks.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 1 || index > len(s.tasks) {
		return tasks.Task{}, &tasks.NotFoundError{Index: index}
	}
	s.tasks[index-1].Status = tasks.StatusBlocked
	s.tasks[index-1].BlockedReason = reason
	return s.tasks[index-1], nil
}

func (s *stubStore) GetProgress(ctx context.Context, _ string) (tasks.Progress, error) {
	if err := s.enter(ctx, "progress"); err != nil {
		return tasks.Progress{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := tasks.Progress{Total: len(s.tasks)}
	for _, t := range s.tasks {
		if t.Status == tasks.StatusDone {
			p.Done++
		}
	}
	return p, nil
}

func (s *stubStore) CreateTask(ctx context.Context, _ string, title string) (tasks.Task, error) {
	if err := s.enter(ctx, "create "+title); err != nil {
		return tasks.Task{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := tasks.Task{Index: len(s.tasks) + 1, Title: title, Status: tasks.StatusPending}
	s.tasks = append(s.tasks, t)
	return t, nil
}

type auditEntry struct {
	traceID, actor, action, target, result string
}

type stubAuditor struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *stubAuditor) WriteAudit(_ context.Context, traceID, actor, action, target, result string, _ map[string]any, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{traceID, actor, action, target, result})
	return nil
}

type stubSender struct {
	sent []string
	err  error
}

func (s *stubSender) Send(_ context.Context, userID, text string) error {
	s.sent = append(s.sent, userID+": "+text)
	return s.err
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

var t0 = time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC)

type harness struct {
	t       *testing.T
	engine  *commands.Engine
	machine *dialogue.Machine
	store   *stubStore
	audit   *stubAuditor
}

func newHarness(t *testing.T, mutate ...func(*commands.Config)) *harness {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	p, err := nlp.FromCatalog(cat, nil)
	if err != nil {
		t.Fatalf("FromCatalog: %v", err)
	}
	h := &harness{
		t:       t,
		machine: dialogue.NewMachine(p, nil, dialogue.Config{}),
		store:   newStubStore(),
		audit:   &stubAuditor{},
	}
	cfg := commands.Config{
		Machine:   h.machine,
		Describer: p,
		// Always take the first allowed template so replies are predictable.
		Replies: humanizer.New(cat.Replies, humanizer.WithRand(func(int) int { return 0 })),
		Tasks:   h.store,
		Auditor: h.audit,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.engine = commands.NewEngine(cfg)
	return h
}

func (h *harness) say(text string, at time.Time) commands.Reply {
	h.t.Helper()
	return h.engine.Process(context.Background(), commands.Message{UserID: "@ana:example.org", Name: "Ana", Text: text, Now: at})
}

func wantOutcome(t *testing.T, r commands.Reply, want commands.Outcome) {
	t.Helper()
	if r.Outcome != want {
		t.Fatalf("Outcome = %s (intent %s, text %q), want %s", r.Outcome, r.Parse.Intent, r.Text, want)
	}
}

func wantCalls(t *testing.T, s *stubStore, want ...string) {
	t.Helper()
	got := s.Calls()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("store calls = %q, want %q", got, want)
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func TestProcess_ListTasks(t *testing.T) {
	h := newHarness(t)
	r := h.say("minhas tarefas", t0)
	wantOutcome(t, r, commands.OutcomeExecuted)
	if r.IntentExecuted != nlp.IntentListTasks {
		t.Errorf("IntentExecuted = %s", r.IntentExecuted)
	}
	for _, line := range []string{"⬜ 1. Revisar relatório", "🔄 2. Ligar pro cliente", "⛔ 3. Enviar proposta (sem acesso)", "✅ 4. Atualizar planilha"} {
		if !strings.Contains(r.Text, line) {
			t.Errorf("reply missing %q:\n%s", line, r.Text)
		}
	}
	if r.SideEffect == nil || r.SideEffect.Capability != "list_tasks" {
		t.Errorf("SideEffect = %v", r.SideEffect)
	}
	if r.TraceID == "" {
		t.Error("no trace id")
	}
}

func TestProcess_FilteredListsKeepPositions(t *testing.T) {
	h := newHarness(t)
	r := h.say("pendentes", t0)
	wantOutcome(t, r, commands.OutcomeExecuted)
	if strings.Contains(r.Text, "Atualizar planilha") || !strings.Contains(r.Text, "3. Enviar proposta") {
		t.Errorf("pending list wrong:\n%s", r.Text)
	}

	r = h.say("concluidas", t0.Add(time.Minute))
	if !strings.Contains(r.Text, "✅ 4. Atualizar planilha") || strings.Contains(r.Text, "Revisar") {
		t.Errorf("done list wrong:\n%s", r.Text)
	}
}

func TestProcess_DoneMultiple(t *testing.T) {
	h := newHarness(t)
	r := h.say("feito 1 e 3", t0)
	wantOutcome(t, r, commands.OutcomeExecuted)
	wantCalls(t, h.store, "mark_done [1 3]")
	if r.Text != "Boa! Marquei como feitas as tarefas 1 e 3. ✅" {
		t.Errorf("Text = %q", r.Text)
	}
	if len(h.audit.entries) != 1 || h.audit.entries[0].action != "mark_done" || h.audit.entries[0].target != "1,3" || h.audit.entries[0].result != "success" {
		t.Errorf("audit = %+v", h.audit.entries)
	}
	if h.audit.entries[0].traceID != r.TraceID {
		t.Errorf("audit trace %q != reply trace %q", h.audit.entries[0].traceID, r.TraceID)
	}
}

func TestProcess_DoneSingleUsesTitle(t *testing.T) {
	h := newHarness(t)
	r := h.say("feito 2", t0)
	if r.Text != "Boa, Ana! Tarefa 2 (Ligar pro cliente) marcada como feita. ✅" {
		t.Errorf("Text = %q", r.Text)
	}
}

func TestProcess_ShowBlockedTask(t *testing.T) {
	h := newHarness(t)
	r := h.say("ver tarefa 3", t0)
	wantOutcome(t, r, commands.OutcomeExecuted)
	if !strings.Contains(r.Text, "Enviar proposta") || !strings.Contains(r.Text, "Motivo: sem acesso") {
		t.Errorf("Text = %q", r.Text)
	}
}

func TestProcess_CreateTask(t *testing.T) {
	h := newHarness(t)
	r := h.say("nova tarefa: revisar relatório", t0)
	wantOutcome(t, r, commands.OutcomeExecuted)
	wantCalls(t, h.store, "create revisar relatório")
	if r.Text != "Anotado! Tarefa 5: revisar relatório. 📝" {
		t.Errorf("Text = %q", r.Text)
	}
}

func TestProcess_Progress(t *testing.T) {
	h := newHarness(t)
	r := h.say("progresso", t0)
	wantOutcome(t, r, commands.OutcomeExecuted)
	// 1 of 4 done.
	if r.Text != "Você está em 25% (1/4). Bom começo! 🚶" {
		t.Errorf("Text = %q", r.Text)
	}
}

// ---------------------------------------------------------------------------
// Dedup and slots
// ---------------------------------------------------------------------------

func TestProcess_DuplicateHasNoSecondSideEffect(t *testing.T) {
	h := newHarness(t)
	wantOutcome(t, h.say("feito 2", t0), commands.OutcomeExecuted)
	r := h.say("Feito  2", t0.Add(10*time.Second))
	wantOutcome(t, r, commands.OutcomeDuplicate)
	if r.Text != "Já registrei isso agorinha! 👍" {
		t.Errorf("Text = %q", r.Text)
	}
	wantCalls(t, h.store, "mark_done [2]")

	wantOutcome(t, h.say("feito 2", t0.Add(31*time.Second)), commands.OutcomeExecuted)
	wantCalls(t, h.store, "mark_done [2]", "mark_done [2]")
}

func TestProcess_ConcurrentDuplicatesExecuteOnce(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.say("feito 1", t0)
		}()
	}
	wg.Wait()
	wantCalls(t, h.store, "mark_done [1]")
}

func TestProcess_BlockedSlotFill(t *testing.T) {
	h := newHarness(t)
	r := h.say("bloqueado 3", t0)
	wantOutcome(t, r, commands.OutcomeSlotPrompt)
	if r.Text != "O que está bloqueando a tarefa 3?" {
		t.Errorf("prompt = %q", r.Text)
	}
	wantCalls(t, h.store)

	r = h.say("sem acesso ao servidor", t0.Add(20*time.Second))
	wantOutcome(t, r, commands.OutcomeExecuted)
	wantCalls(t, h.store, "mark_blocked 3 sem acesso ao servidor")
	if r.IntentExecuted != nlp.IntentBlockedTask {
		t.Errorf("IntentExecuted = %s", r.IntentExecuted)
	}
	if !strings.Contains(r.Text, "Motivo: sem acesso ao servidor") {
		t.Errorf("Text = %q", r.Text)
	}
}

func TestProcess_IndexSlotPromptIsIntentSpecific(t *testing.T) {
	h := newHarness(t)
	r := h.say("terminei", t0)
	wantOutcome(t, r, commands.OutcomeSlotPrompt)
	if r.Text != "Qual tarefa você terminou? Me manda o número." {
		t.Errorf("prompt = %q", r.Text)
	}
	r = h.say("a quarta", t0.Add(5*time.Second))
	wantOutcome(t, r, commands.OutcomeExecuted)
	wantCalls(t, h.store, "mark_done [4]")
}

func TestProcess_CancelSlot(t *testing.T) {
	h := newHarness(t)
	h.say("terminei", t0)
	r := h.say("deixa pra lá", t0.Add(5*time.Second))
	wantOutcome(t, r, commands.OutcomeCancelled)
	wantCalls(t, h.store)

	r = h.say("cancelar", t0.Add(10*time.Second))
	wantOutcome(t, r, commands.OutcomeChat)
	if r.Text != "Não tinha nada em andamento pra cancelar. 🙂" {
		t.Errorf("Text = %q", r.Text)
	}
}

// ---------------------------------------------------------------------------
// Below threshold
// ---------------------------------------------------------------------------

func TestProcess_BelowThresholdDisambiguates(t *testing.T) {
	h := newHarness(t)
	r := h.say("tarefa", t0)
	wantOutcome(t, r, commands.OutcomeDisambiguation)
	if !strings.Contains(r.Text, "ver suas tarefas") {
		t.Errorf("options should lead with the likeliest intent: %q", r.Text)
	}
	if strings.Contains(r.Text, "{options}") {
		t.Errorf("unrendered placeholder: %q", r.Text)
	}

	r = h.say("xyzzy plugh", t0.Add(time.Minute))
	wantOutcome(t, r, commands.OutcomeDisambiguation)
	if !strings.Contains(r.Text, " ou ") {
		t.Errorf("expected at least two options: %q", r.Text)
	}
	wantCalls(t, h.store)
	if len(h.audit.entries) != 0 {
		t.Errorf("audit written without execution: %+v", h.audit.entries)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestProcess_NotFound(t *testing.T) {
	h := newHarness(t)
	r := h.say("feito 9", t0)
	wantOutcome(t, r, commands.OutcomeFailure)
	if r.Text != "Não encontrei a tarefa 9 na sua lista. Manda \"minhas tarefas\" pra conferir os números." {
		t.Errorf("Text = %q", r.Text)
	}
	if r.IntentExecuted != nlp.IntentDoneTask {
		t.Errorf("IntentExecuted = %s", r.IntentExecuted)
	}
	if len(h.audit.entries) != 1 || h.audit.entries[0].result != "error" {
		t.Errorf("audit = %+v", h.audit.entries)
	}
}

func TestProcess_StoreFailureClearsSlot(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("database is locked")

	h.say("bloqueado 3", t0)
	r := h.say("sem acesso", t0.Add(20*time.Second))
	wantOutcome(t, r, commands.OutcomeFailure)
	if r.Text != "Ops, não consegui falar com a sua lista agora. 😕 Tenta de novo daqui a pouco?" {
		t.Errorf("Text = %q", r.Text)
	}

	sess, err := h.machine.Begin(context.Background(), "@ana:example.org")
	if err != nil {
		t.Fatal(err)
	}
	defer sess.End(context.Background())
	if sess.State.Awaiting() {
		t.Errorf("slot should be cleared after the call: %+v", sess.State.Pending)
	}
}

func TestProcess_CapabilityTimeout(t *testing.T) {
	h := newHarness(t, func(c *commands.Config) { c.CapabilityTimeout = 20 * time.Millisecond })
	h.store.hang = true

	start := time.Now()
	r := h.say("progresso", t0)
	if time.Since(start) > 2*time.Second {
		t.Fatal("store call was not bounded")
	}
	wantOutcome(t, r, commands.OutcomeFailure)
}

// ---------------------------------------------------------------------------
// Chat
// ---------------------------------------------------------------------------

func TestProcess_GreetingUsesLocation(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*3600)
	h := newHarness(t, func(c *commands.Config) { c.Location = saoPaulo })

	// 01:00 UTC is 22:00 the previous evening in São Paulo.
	r := h.say("oi", time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC))
	wantOutcome(t, r, commands.OutcomeChat)
	if !strings.HasPrefix(r.Text, "Boa noite, Ana!") {
		t.Errorf("Text = %q", r.Text)
	}
	wantCalls(t, h.store)
}

func TestProcess_HelpTopic(t *testing.T) {
	h := newHarness(t)
	r := h.say("ajuda exemplos", t0)
	if !strings.HasPrefix(r.Text, "Uns exemplos") {
		t.Errorf("Text = %q", r.Text)
	}
	r = h.say("ajuda", t0.Add(time.Minute))
	if !strings.HasPrefix(r.Text, "Posso te ajudar com suas tarefas, Ana!") {
		t.Errorf("Text = %q", r.Text)
	}
}

// ---------------------------------------------------------------------------
// Handle
// ---------------------------------------------------------------------------

func TestHandle_SendsReply(t *testing.T) {
	sender := &stubSender{}
	h := newHarness(t, func(c *commands.Config) { c.Sender = sender })

	r, err := h.engine.Handle(context.Background(), commands.Message{UserID: "u1", Name: "Ana", Text: "obrigado", Now: t0})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "u1: "+r.Text {
		t.Errorf("sent = %q", sender.sent)
	}
}

func TestHandle_SendFailure(t *testing.T) {
	boom := errors.New("homeserver unreachable")
	h := newHarness(t, func(c *commands.Config) { c.Sender = &stubSender{err: boom} })

	r, err := h.engine.Handle(context.Background(), commands.Message{UserID: "u1", Text: "feito 1", Now: t0})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	// The side effect already happened; only delivery failed.
	if r.Outcome != commands.OutcomeExecuted {
		t.Errorf("Outcome = %s", r.Outcome)
	}
}
