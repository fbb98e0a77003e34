package queue_test

import (
	"fmt"
	"net/http"
	"testing"

	"fanline/test/integration/testutil"

	"go.mongodb.org/mongo-driver/bson"
)

func TestQueueLifecycle(t *testing.T) {
	env := testutil.NewTestEnv(t)
	mongo, client := env.Setup(t)
	defer env.Cleanup(t, mongo)

	resourceID := mongo.Seed(t, testutil.ResourcesCollection, testutil.NewResourceBuilder().Build())
	base := fmt.Sprintf("/api/v1/queues/%s/participants", resourceID)

	// Join assigns the first sequence.
	resp := client.POST(t, base+"/alice", nil)
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	var entry struct {
		Sequence uint64 `json:"sequence"`
		Status   string `json:"status"`
	}
	resp.DecodeData(t, &entry)
	if entry.Sequence != 1 {
		t.Errorf("expected sequence 1 for the first participant, got %d", entry.Sequence)
	}
	if entry.Status != "waiting" {
		t.Errorf("expected status waiting, got %s", entry.Status)
	}

	// A second join by the same participant is a conflict, not a new entry.
	resp = client.POST(t, base+"/alice", nil)
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
	if code := resp.ErrorCode(t); code != "ALREADY_QUEUED" {
		t.Errorf("expected ALREADY_QUEUED, got %s", code)
	}

	// Later joiners queue up behind.
	resp = client.POST(t, base+"/bob", nil)
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	var state struct {
		Status   string `json:"status"`
		Position int64  `json:"position"`
	}
	resp = client.GET(t, base+"/bob")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	resp.DecodeData(t, &state)
	if state.Position != 1 {
		t.Errorf("expected bob at position 1 behind alice, got %d", state.Position)
	}

	// Front of the queue gets admitted and receives a checkout token.
	resp = client.POST(t, base+"/alice/admission", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var admission struct {
		Admitted      bool   `json:"admitted"`
		CheckoutToken string `json:"checkout_token"`
	}
	resp.DecodeData(t, &admission)
	if !admission.Admitted {
		t.Fatal("expected alice to be admitted from the front of the queue")
	}
	if admission.CheckoutToken == "" {
		t.Error("expected a checkout token on admission")
	}

	// Leaving starts the cooldown; an immediate rejoin is throttled.
	resp = client.DELETE(t, base+"/alice")
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	resp = client.POST(t, base+"/alice", nil)
	testutil.AssertStatusCode(t, resp, http.StatusTooManyRequests)
	if code := resp.ErrorCode(t); code != "COOLING_DOWN" {
		t.Errorf("expected COOLING_DOWN, got %s", code)
	}

	// Bob moves up once alice is gone.
	resp = client.GET(t, base+"/bob")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	resp.DecodeData(t, &state)
	if state.Position != 0 {
		t.Errorf("expected bob at the front after alice left, got position %d", state.Position)
	}
}

func TestJoin_ClosedSaleRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	mongo, client := env.Setup(t)
	defer env.Cleanup(t, mongo)

	resourceID := mongo.Seed(t, testutil.ResourcesCollection,
		testutil.NewResourceBuilder().WithSaleStatus("closed").Build())

	resp := client.POST(t, fmt.Sprintf("/api/v1/queues/%s/participants/alice", resourceID), nil)
	testutil.AssertStatusCode(t, resp, http.StatusConflict)
	if code := resp.ErrorCode(t); code != "SALE_WINDOW_CLOSED" {
		t.Errorf("expected SALE_WINDOW_CLOSED, got %s", code)
	}
}

func TestCheckout_SlotsAreBounded(t *testing.T) {
	env := testutil.NewTestEnv(t)
	mongo, client := env.Setup(t)
	defer env.Cleanup(t, mongo)

	resourceID := mongo.Seed(t, testutil.ResourcesCollection, testutil.NewResourceBuilder().Build())
	base := fmt.Sprintf("/api/v1/checkouts/%s/participants", resourceID)

	// Fill every slot, then the next acquire must be rejected.
	acquired := 0
	var rejected *testutil.Response
	for i := 0; i < 20; i++ {
		resp := client.POST(t, fmt.Sprintf("%s/buyer-%d", base, i), nil)
		switch resp.StatusCode {
		case http.StatusCreated:
			acquired++
		case http.StatusConflict:
			rejected = resp
		default:
			t.Fatalf("unexpected status %d (body: %s)", resp.StatusCode, resp.Body)
		}
		if rejected != nil {
			break
		}
	}

	if rejected == nil {
		t.Fatal("expected the checkout limit to reject an acquire before 20 slots")
	}
	if code := rejected.ErrorCode(t); code != "CAPACITY_EXCEEDED" {
		t.Errorf("expected CAPACITY_EXCEEDED, got %s", code)
	}

	// Releasing a slot frees capacity for the next buyer.
	resp := client.DELETE(t, base+"/buyer-0")
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)

	resp = client.POST(t, base+"/late-buyer", nil)
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	count := mongo.CountDocuments(t, testutil.CheckoutSessionsCollection, bson.D{})
	if count != int64(acquired) {
		t.Errorf("expected %d live sessions, got %d", acquired, count)
	}
}
