package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/loopback-ai/helpdesk-service/internal/assist"
	"github.com/loopback-ai/helpdesk-service/internal/errs"
	"github.com/loopback-ai/helpdesk-service/internal/model"
	storefile "github.com/loopback-ai/helpdesk-service/internal/store/file"
)

type fakeAnalyzer struct {
	analysis assist.Analysis
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, query, kbContext string, mode assist.Mode) *assist.Analysis {
	a := f.analysis
	return &a
}

func (f *fakeAnalyzer) Standardize(ctx context.Context, text string) string { return text }

type fakeProducer struct {
	events []string
}

func (f *fakeProducer) ProduceTicketEvent(ctx context.Context, event string, t *model.Ticket) {
	f.events = append(f.events, event+":"+t.ID)
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyTicketAsync(t *model.Ticket, question string) {
	f.notified = append(f.notified, t.ID)
}

type testEnv struct {
	svc      *TicketService
	kbSvc    *KnowledgeService
	producer *fakeProducer
	notify   *fakeNotifier
}

func newTestEnv(t *testing.T, analysis assist.Analysis) *testEnv {
	t.Helper()
	dir := t.TempDir()
	tickets, err := storefile.NewTicketStore(dir)
	if err != nil {
		t.Fatalf("ticket store: %v", err)
	}
	kb, err := storefile.NewKnowledgeStore(dir)
	if err != nil {
		t.Fatalf("knowledge store: %v", err)
	}
	analyzer := &fakeAnalyzer{analysis: analysis}
	producer := &fakeProducer{}
	notify := &fakeNotifier{}
	kbSvc := NewKnowledgeService(kb, analyzer)
	return &testEnv{
		svc:      NewTicketService(tickets, kbSvc, analyzer, producer, notify),
		kbSvc:    kbSvc,
		producer: producer,
		notify:   notify,
	}
}

func lowConfidenceNetwork() assist.Analysis {
	return assist.Analysis{
		Confidence:    "low",
		Summary:       "Network Issue",
		SolutionDraft: "draft",
		TicketMetadata: assist.Metadata{
			Title:       "Network Issue",
			Category:    model.CategoryNetwork,
			Subcategory: "VPN",
		},
		IsITRelated: true,
	}
}

func TestCreate_HighConfidenceSuggestsWithoutTicket(t *testing.T) {
	env := newTestEnv(t, assist.Analysis{
		Confidence:    "high",
		SolutionDraft: "Restart the VPN client.",
	})
	ctx := context.Background()

	res, err := env.svc.Create(ctx, CreateTicketInput{Query: "vpn down"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Status != CreateStatusSuggested {
		t.Errorf("expected suggested, got %s", res.Status)
	}
	if res.TicketID != "" {
		t.Errorf("no ticket must be created, got id %s", res.TicketID)
	}
	if res.Solution != "Restart the VPN client." {
		t.Errorf("unexpected solution %q", res.Solution)
	}
	tickets, _ := env.svc.List(ctx)
	if len(tickets) != 0 {
		t.Errorf("expected empty store, got %d tickets", len(tickets))
	}
}

func TestCreate_ForceCreateBypassesIntercept(t *testing.T) {
	a := lowConfidenceNetwork()
	a.Confidence = "high"
	env := newTestEnv(t, a)
	ctx := context.Background()

	res, err := env.svc.Create(ctx, CreateTicketInput{Query: "VPN connectivity failure", ForceCreate: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Status != CreateStatusCreated || res.TicketID != "TKT-1001" {
		t.Fatalf("expected created TKT-1001, got %+v", res)
	}
	// high confidence: черновик прилагается к созданному тикету
	if res.Solution != "draft" {
		t.Errorf("expected solution for high confidence, got %q", res.Solution)
	}

	ticket, err := env.svc.Get(ctx, res.TicketID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ticket.Query != "VPN connectivity failure" {
		t.Errorf("ticket query must be the submitted summary, got %q", ticket.Query)
	}
	if ticket.Status != model.TicketStatusPending {
		t.Errorf("expected Pending, got %s", ticket.Status)
	}
	if ticket.Category != model.CategoryNetwork || ticket.Subcategory != "VPN" {
		t.Errorf("metadata not applied: %+v", ticket)
	}
	if len(ticket.History) != 1 || ticket.History[0].Role != "user" {
		t.Errorf("expected single user fallback history entry, got %+v", ticket.History)
	}
	if len(env.producer.events) != 1 || env.producer.events[0] != "ticket.created:TKT-1001" {
		t.Errorf("expected created event, got %v", env.producer.events)
	}
}

func TestCreate_HistoryFromRequest(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	res, err := env.svc.Create(context.Background(), CreateTicketInput{
		Query: "vpn down",
		History: []ChatTurn{
			{Role: "user", Content: "my vpn is broken"},
			{Role: "model", Content: "did you restart?"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ticket, _ := env.svc.Get(context.Background(), res.TicketID)
	if len(ticket.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(ticket.History))
	}
	if ticket.History[1].Role != "model" || ticket.History[1].Message != "did you restart?" {
		t.Errorf("history not carried over: %+v", ticket.History)
	}
}

func TestCreate_SessionDedup(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	first, err := env.svc.Create(ctx, CreateTicketInput{Query: "vpn down", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := env.svc.Create(ctx, CreateTicketInput{Query: "vpn still down", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.Status != CreateStatusExists {
		t.Errorf("expected exists, got %s", second.Status)
	}
	if second.TicketID != first.TicketID {
		t.Errorf("expected existing ticket %s, got %s", first.TicketID, second.TicketID)
	}
	tickets, _ := env.svc.List(ctx)
	if len(tickets) != 1 {
		t.Errorf("expected single ticket for the session, got %d", len(tickets))
	}
}

func TestCreate_GroupsSimilarTickets(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	queries := []string{
		"Wifi keeps dropping on the third floor",
		"Wifi keeps dropping on third floor",
		"The wifi keeps dropping on the third floor",
	}
	for _, q := range queries {
		if _, err := env.svc.Create(ctx, CreateTicketInput{Query: q}); err != nil {
			t.Fatalf("create %q: %v", q, err)
		}
	}

	tickets, _ := env.svc.List(ctx)
	if len(tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(tickets))
	}
	for _, tk := range tickets {
		if tk.GroupID != "TKT-1001" {
			t.Errorf("ticket %s: expected group TKT-1001, got %s", tk.ID, tk.GroupID)
		}
	}
}

func TestCreate_UnrelatedTicketsStayUngrouped(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	if _, err := env.svc.Create(ctx, CreateTicketInput{Query: "Wifi keeps dropping on the third floor"}); err != nil {
		t.Fatal(err)
	}
	res, err := env.svc.Create(ctx, CreateTicketInput{Query: "Requesting a new ergonomic keyboard"})
	if err != nil {
		t.Fatal(err)
	}
	ticket, _ := env.svc.Get(ctx, res.TicketID)
	if ticket.GroupID != ticket.ID {
		t.Errorf("unrelated ticket must anchor its own group, got %s", ticket.GroupID)
	}
}

const qualityAnswer = "Check the VPN settings and restart the network adapter"

func TestBroadcast_ResolvesAndLearns(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	res, _ := env.svc.Create(ctx, CreateTicketInput{Query: "Corporate VPN refuses connections"})
	resolved, err := env.svc.Broadcast(ctx, res.TicketID, qualityAnswer)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if resolved != 1 {
		t.Errorf("expected 1 resolved, got %d", resolved)
	}

	ticket, _ := env.svc.Get(ctx, res.TicketID)
	if ticket.Status != model.TicketStatusResolved || ticket.FinalAnswer != qualityAnswer {
		t.Errorf("ticket not resolved: %+v", ticket)
	}
	if ticket.Notified {
		t.Error("notified must be reset for the relay to pick up")
	}
	if len(env.notify.notified) != 1 {
		t.Errorf("expected 1 notification, got %d", len(env.notify.notified))
	}

	entries, _ := env.kbSvc.List(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected 1 learned KB entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Question != "Corporate VPN refuses connections" {
		t.Errorf("unexpected KB question %q", e.Question)
	}
	if e.Tags != "Network;VPN;Resolved" {
		t.Errorf("unexpected KB tags %q", e.Tags)
	}
}

func TestBroadcast_IdempotentOnResolved(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	res, _ := env.svc.Create(ctx, CreateTicketInput{Query: "Corporate VPN refuses connections"})
	if _, err := env.svc.Broadcast(ctx, res.TicketID, qualityAnswer); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	resolved, err := env.svc.Broadcast(ctx, res.TicketID, "different answer entirely, still fine")
	if err != nil {
		t.Fatalf("second broadcast must not error: %v", err)
	}
	if resolved != 1 {
		t.Errorf("expected no-op success, got %d", resolved)
	}
	ticket, _ := env.svc.Get(ctx, res.TicketID)
	if ticket.FinalAnswer != qualityAnswer {
		t.Errorf("re-broadcast must not rewrite the answer, got %q", ticket.FinalAnswer)
	}
	entries, _ := env.kbSvc.List(ctx)
	if len(entries) != 1 {
		t.Errorf("expected single KB entry, got %d", len(entries))
	}
}

func TestBroadcast_MissingTicket(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	_, err := env.svc.Broadcast(context.Background(), "TKT-9999", qualityAnswer)
	if !errors.Is(err, errs.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestBroadcast_TransactionalAnswerSkipsLearning(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	res, _ := env.svc.Create(ctx, CreateTicketInput{Query: "Need a license for the design suite"})
	if _, err := env.svc.Broadcast(ctx, res.TicketID, "We have received your request and will let you know"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	ticket, _ := env.svc.Get(ctx, res.TicketID)
	if ticket.Status != model.TicketStatusResolved {
		t.Errorf("ticket must resolve regardless, got %s", ticket.Status)
	}
	entries, _ := env.kbSvc.List(ctx)
	if len(entries) != 0 {
		t.Errorf("transactional answer must not enter the KB, got %d entries", len(entries))
	}
}

func TestBroadcastAll_SelectedIDs(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	var ids []string
	for _, q := range []string{"Mail server unreachable", "Shared drive missing", "Badge reader broken"} {
		res, err := env.svc.Create(ctx, CreateTicketInput{Query: q})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, res.TicketID)
	}

	resolvedIDs, err := env.svc.BroadcastAll(ctx, ids[:2], "", qualityAnswer)
	if err != nil {
		t.Fatalf("broadcast all: %v", err)
	}
	if len(resolvedIDs) != 2 {
		t.Fatalf("expected 2 resolved ids, got %v", resolvedIDs)
	}
	for i, id := range resolvedIDs {
		if id != ids[i] {
			t.Errorf("resolved_ids[%d] = %s, want %s", i, id, ids[i])
		}
	}

	third, _ := env.svc.Get(ctx, ids[2])
	if third.Status != model.TicketStatusPending {
		t.Errorf("unselected ticket must stay Pending, got %s", third.Status)
	}

	// Повторный вызов по уже закрытым тикетам — успешный no-op.
	again, err := env.svc.BroadcastAll(ctx, ids[:2], "", qualityAnswer)
	if err != nil {
		t.Fatalf("repeat broadcast all: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected no re-resolution, got %v", again)
	}
}

func TestBroadcastAll_ByCategory(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	for _, q := range []string{"Mail server unreachable", "Shared drive missing"} {
		if _, err := env.svc.Create(ctx, CreateTicketInput{Query: q}); err != nil {
			t.Fatal(err)
		}
	}
	resolvedIDs, err := env.svc.BroadcastAll(ctx, nil, model.CategoryNetwork, qualityAnswer)
	if err != nil {
		t.Fatalf("broadcast all: %v", err)
	}
	if len(resolvedIDs) != 2 {
		t.Errorf("expected both Network tickets resolved, got %v", resolvedIDs)
	}

	entries, _ := env.kbSvc.List(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected batch KB entry, got %d", len(entries))
	}
	if entries[0].Question != "Batch Resolved: 2 tickets" {
		t.Errorf("unexpected batch question %q", entries[0].Question)
	}
	if entries[0].Tags != "Network;BatchResolved" {
		t.Errorf("unexpected batch tags %q", entries[0].Tags)
	}
}

func TestAsk_TransitionsToAwaitingInfo(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	res, _ := env.svc.Create(ctx, CreateTicketInput{Query: "Laptop battery drains fast"})
	if err := env.svc.Ask(ctx, res.TicketID, "Which laptop model do you have?"); err != nil {
		t.Fatalf("ask: %v", err)
	}

	ticket, _ := env.svc.Get(ctx, res.TicketID)
	if ticket.Status != model.TicketStatusAwaitingInfo {
		t.Errorf("expected Awaiting Info, got %s", ticket.Status)
	}
	last := ticket.History[len(ticket.History)-1]
	if last.Role != "admin" || last.Message != "Which laptop model do you have?" {
		t.Errorf("question not appended: %+v", last)
	}
	if ticket.Notified {
		t.Error("notified must be reset after ask")
	}
	if err := env.svc.Ask(ctx, "TKT-9999", "q"); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestSelfResolve(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	res, _ := env.svc.Create(ctx, CreateTicketInput{Query: "Monitor flickers"})
	if err := env.svc.SelfResolve(ctx, res.TicketID); err != nil {
		t.Fatalf("self resolve: %v", err)
	}
	ticket, _ := env.svc.Get(ctx, res.TicketID)
	if ticket.Status != model.TicketStatusSelfResolved {
		t.Errorf("expected Self-Resolved, got %s", ticket.Status)
	}
	last := ticket.History[len(ticket.History)-1]
	if last.Role != "user" {
		t.Errorf("expected closing user entry, got %+v", last)
	}
}

func TestAckNotification(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	res, _ := env.svc.Create(ctx, CreateTicketInput{Query: "Mail rules vanish"})
	if _, err := env.svc.Broadcast(ctx, res.TicketID, qualityAnswer); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.AckNotification(ctx, res.TicketID); err != nil {
		t.Fatalf("ack: %v", err)
	}
	ticket, _ := env.svc.Get(ctx, res.TicketID)
	if !ticket.Notified {
		t.Error("notified flag must be set after ack")
	}
}

func TestDelete_RemovesTicket(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	res, _ := env.svc.Create(ctx, CreateTicketInput{Query: "Old request"})
	if err := env.svc.Delete(ctx, res.TicketID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	tickets, _ := env.svc.List(ctx)
	for _, tk := range tickets {
		if tk.ID == res.TicketID {
			t.Error("deleted ticket still listed")
		}
	}
	found := false
	for _, ev := range env.producer.events {
		if ev == "ticket.deleted:"+res.TicketID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected deleted event, got %v", env.producer.events)
	}
	if err := env.svc.Delete(ctx, res.TicketID); !errors.Is(err, errs.ErrTicketNotFound) {
		t.Errorf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestAnalyzeChat_KeywordEscalation(t *testing.T) {
	a := lowConfidenceNetwork()
	a.SolutionDraft = "Have you tried reconnecting?"
	a.EscalationRequired = false
	env := newTestEnv(t, a)

	got := env.svc.AnalyzeChat(context.Background(), "Just open a ticket for an admin please", nil)
	if !got.EscalationRequired {
		t.Error("keyword in the message must force escalation")
	}
	if got.Response != "Have you tried reconnecting?" {
		t.Errorf("unexpected response %q", got.Response)
	}

	got = env.svc.AnalyzeChat(context.Background(), "The wifi feels slow today", nil)
	if got.EscalationRequired {
		t.Error("no keyword and no model signal: must not escalate")
	}
}

func TestAnalyzeChat_SummaryFallsBackToMessage(t *testing.T) {
	a := lowConfidenceNetwork()
	a.Summary = ""
	env := newTestEnv(t, a)

	got := env.svc.AnalyzeChat(context.Background(), "My screen is cracked", nil)
	if got.Summary != "My screen is cracked" {
		t.Errorf("expected message fallback, got %q", got.Summary)
	}
}

func TestKnowledgeService_UpdatePreservesTags(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	entry := &model.KBEntry{Category: "Network", Question: "VPN drops", Resolution: "Reconnect.", Tags: "vpn;network"}
	if err := env.kbSvc.Create(ctx, entry); err != nil {
		t.Fatalf("create: %v", err)
	}

	update := &model.KBEntry{ID: entry.ID, Category: "Network", Question: "VPN drops", Resolution: "Reconnect to EU-1."}
	if err := env.kbSvc.Update(ctx, update); err != nil {
		t.Fatalf("update: %v", err)
	}
	entries, _ := env.kbSvc.List(ctx)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Tags != "vpn;network" {
		t.Errorf("empty tags in the request must preserve existing, got %q", entries[0].Tags)
	}
	if entries[0].Resolution != "Reconnect to EU-1." {
		t.Errorf("resolution not updated: %q", entries[0].Resolution)
	}
}

func TestKnowledgeService_LearnDeduplicates(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()

	env.kbSvc.LearnResolution(ctx, "Network", "VPN", "Corporate VPN refuses connections", qualityAnswer)
	env.kbSvc.LearnResolution(ctx, "Network", "VPN", "Corporate VPN refuses connection", qualityAnswer)

	entries, _ := env.kbSvc.List(ctx)
	if len(entries) != 1 {
		t.Errorf("near-duplicate question must be rejected, got %d entries", len(entries))
	}
}

func TestKnowledgeService_ContextSummary(t *testing.T) {
	env := newTestEnv(t, lowConfidenceNetwork())
	ctx := context.Background()
	if err := env.kbSvc.Create(ctx, &model.KBEntry{Category: "Network", Question: "VPN drops hourly", Resolution: "Reconnect."}); err != nil {
		t.Fatal(err)
	}
	got := env.kbSvc.ContextSummary(ctx, "vpn drops")
	if !strings.Contains(got, "VPN drops hourly") {
		t.Errorf("expected KB context to surface the matching entry, got %q", got)
	}
}
