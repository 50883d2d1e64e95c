package service

import (
	"context"
	"sync"
	"testing"

	"vinyl-exchange/internal/domain"
)

func TestTrade_InitiateConfirm(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller, buyer, rec, conv := tradeSetup(t, e)
	in := TradeInput{ConversationID: conv.ID}

	_, err := e.trades.Confirm(ctx, seller, in)
	wantErr(t, err, domain.ErrInvalidState)

	res, err := e.trades.Initiate(ctx, buyer, in)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if res.TradeStatus.State != "INITIATED" || *res.TradeStatus.InitiatedBy != buyer {
		t.Errorf("status = %+v", res.TradeStatus)
	}
	_, err = e.trades.Initiate(ctx, seller, in)
	wantErr(t, err, domain.ErrConflict)

	if c, _ := e.messages.UnreadCount(ctx, seller); c.PendingTradeConfirmations != 1 || c.UnreadCount != 1 {
		t.Errorf("seller pending = %+v", c)
	}
	if c, _ := e.messages.UnreadCount(ctx, buyer); c.PendingTradeConfirmations != 0 {
		t.Errorf("buyer pending = %+v", c)
	}

	_, err = e.trades.Confirm(ctx, buyer, in)
	wantErr(t, err, domain.ErrForbidden)

	res, err = e.trades.Confirm(ctx, seller, in)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !res.TradeStatus.IsCompleted || res.TradeStatus.State != "COMPLETED" || *res.TradeStatus.ConfirmedBy != seller {
		t.Errorf("status = %+v", res.TradeStatus)
	}

	_, err = e.trades.Confirm(ctx, seller, in)
	wantErr(t, err, domain.ErrConflict)
	_, err = e.trades.Initiate(ctx, buyer, in)
	wantErr(t, err, domain.ErrConflict)

	// 成交副作用
	for _, id := range []string{seller, buyer} {
		if u := e.user(t, id); u.TradeCount != 1 {
			t.Errorf("trade count of %s = %d", id, u.TradeCount)
		}
	}
	got, err := e.records.Get(ctx, rec.ID)
	if err != nil || !got.IsTraded {
		t.Errorf("record = %+v, %v", got, err)
	}
	if u := e.user(t, seller); len(u.ListedRecords) != 0 {
		t.Errorf("seller still lists %v", u.ListedRecords)
	}
	page, _ := e.records.List(ctx, RecordQuery{})
	if page.Total != 0 {
		t.Errorf("traded record still browsable")
	}
}

func TestTrade_ConcurrentConfirmCountsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller, buyer, _, conv := tradeSetup(t, e)
	in := TradeInput{ConversationID: conv.ID}
	if _, err := e.trades.Initiate(ctx, buyer, in); err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.trades.Confirm(ctx, seller, in); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if ok != 1 {
		t.Errorf("successful confirms = %d, want 1", ok)
	}
	if u := e.user(t, seller); u.TradeCount != 1 {
		t.Errorf("trade count = %d", u.TradeCount)
	}
}

func TestTrade_ConfirmAfterRecordDeleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller, buyer, rec, conv := tradeSetup(t, e)
	in := TradeInput{ConversationID: conv.ID}
	if _, err := e.trades.Initiate(ctx, buyer, in); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if err := e.records.Delete(ctx, seller, rec.ID, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.trades.Confirm(ctx, seller, in); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if u := e.user(t, buyer); u.TradeCount != 1 {
		t.Errorf("trade count = %d", u.TradeCount)
	}
}

func TestFeedback(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller, buyer, _, conv := tradeSetup(t, e)
	in := TradeInput{ConversationID: conv.ID}
	fb := FeedbackInput{ConversationID: conv.ID, Rating: 5, Comment: " smooth trade "}

	_, err := e.trades.Feedback(ctx, buyer, fb)
	wantErr(t, err, domain.ErrInvalidState)

	if _, err := e.trades.Initiate(ctx, buyer, in); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := e.trades.Confirm(ctx, seller, in); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	_, err = e.trades.Feedback(ctx, buyer, FeedbackInput{ConversationID: conv.ID, Rating: 6})
	wantErr(t, err, domain.ErrValidation)

	res, err := e.trades.Feedback(ctx, buyer, fb)
	if err != nil {
		t.Fatalf("Feedback: %v", err)
	}
	if len(res.TradeStatus.FeedbackProvided) != 1 || res.TradeStatus.FeedbackProvided[0] != buyer {
		t.Errorf("feedbackProvided = %v", res.TradeStatus.FeedbackProvided)
	}
	_, err = e.trades.Feedback(ctx, buyer, fb)
	wantErr(t, err, domain.ErrConflict)

	if _, err := e.trades.Feedback(ctx, seller, FeedbackInput{ConversationID: conv.ID, Rating: 4}); err != nil {
		t.Fatalf("seller Feedback: %v", err)
	}

	pub, err := e.users.PublicProfile(ctx, seller)
	if err != nil {
		t.Fatalf("PublicProfile: %v", err)
	}
	if len(pub.Feedback) != 1 {
		t.Fatalf("seller feedback = %+v", pub.Feedback)
	}
	f := pub.Feedback[0]
	if f.Rating != 5 || f.Comment != "smooth trade" || f.FromUser.ID != buyer || f.FromUser.Username != "buyer" {
		t.Errorf("feedback = %+v", f)
	}

	outsider := e.register(t, "outsider")
	_, err = e.trades.Feedback(ctx, outsider, fb)
	wantErr(t, err, domain.ErrForbidden)
}

func TestTrade_ConfirmWhileSellerLists(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	seller := e.register(t, "seller")
	buyer := e.register(t, "buyer")

	var traded []string
	for round := 0; round < 5; round++ {
		rec := e.list(t, seller, CreateRecordInput{Title: ptr("Traded")})
		conv, err := e.messages.Start(ctx, buyer, StartInput{RecordID: rec.ID})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		in := TradeInput{ConversationID: conv.ID}
		if _, err := e.trades.Initiate(ctx, buyer, in); err != nil {
			t.Fatalf("Initiate: %v", err)
		}
		traded = append(traded, rec.ID)

		// 确认成交与同一卖家的两次上架并发
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			errs []error
		)
		run := func(fn func() error) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := fn(); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}()
		}
		run(func() error {
			_, err := e.trades.Confirm(ctx, seller, in)
			return err
		})
		for i := 0; i < 2; i++ {
			run(func() error {
				_, err := e.records.Create(ctx, seller, CreateRecordInput{Title: ptr("Fresh")})
				return err
			})
		}
		wg.Wait()
		if len(errs) > 0 {
			t.Fatalf("round %d: %v", round, errs)
		}
	}

	listed := e.user(t, seller).ListedRecords
	for _, id := range traded {
		for _, got := range listed {
			if got == id {
				t.Errorf("traded record %s still listed", id)
			}
		}
	}
	page, err := e.records.List(ctx, RecordQuery{Size: 100})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 10 || len(listed) != 10 {
		t.Errorf("browsable = %d, listed = %d, want 10", page.Total, len(listed))
	}
	for _, r := range page.Items {
		found := false
		for _, id := range listed {
			found = found || id == r.ID
		}
		if !found {
			t.Errorf("record %s missing from seller's list", r.ID)
		}
	}
}
