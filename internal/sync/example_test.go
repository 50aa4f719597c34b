package sync_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/edebt/syncengine/internal/gateway"
	"github.com/edebt/syncengine/internal/gateway/gatewaytest"
	"github.com/edebt/syncengine/internal/queue"
	"github.com/edebt/syncengine/internal/schema"
	"github.com/edebt/syncengine/internal/store"
	"github.com/edebt/syncengine/internal/sync"
	"github.com/shopspring/decimal"
)

// This example shows the wiring against a real remote.
// Note: This is for documentation only and won't run as a test.
func ExampleNew() {
	ctx := context.Background()

	st, err := store.Open(ctx, store.Options{Dir: ".edebt"})
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	client, err := gateway.NewHTTPClient("http://localhost:5000", nil)
	if err != nil {
		log.Fatal(err)
	}

	syncer := sync.New(st, queue.New(st, nil), client, nil)
	res := syncer.FullSync(ctx, sync.TriggerManual)
	fmt.Println(res.Summary())
}

// An order queued while offline is uploaded on the next cycle and counted once.
func ExampleSyncer_FullSync() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "edebt-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	quiet := log.New(io.Discard, "", 0)
	st, err := store.Open(ctx, store.Options{Dir: dir, Logger: quiet})
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	remote := gatewaytest.NewRemote()
	remote.SeedCustomer(schema.Customer{BusinessID: "CUST-1", Name: "Ada", Balance: decimal.NewFromInt(100)})

	q := queue.New(st, nil)
	syncer := sync.New(st, q, remote, &sync.Options{Logger: quiet})
	syncer.FullSync(ctx, sync.TriggerStartup)

	m, _ := schema.NewOrderCreate(schema.OrderPayload{
		CustomerBusinessID: "CUST-1",
		Name:               "Rice",
		Amount:             decimal.NewFromInt(75),
	}, time.Time{})
	if _, err := q.Enqueue(ctx, m); err != nil {
		log.Fatal(err)
	}

	res := syncer.FullSync(ctx, sync.TriggerManual)
	c, _ := remote.Customer("CUST-1")
	fmt.Println(res.Status(), res.UploadedOrders, c.Balance)
	// Output: success 1 175
}
