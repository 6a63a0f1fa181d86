// Command subscription manages the Strava webhook push subscription.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/chromium7/shoe-wear-tracker/internal/config"
	"github.com/chromium7/shoe-wear-tracker/internal/strava"
)

func main() {
	action := flag.String("action", "list", "one of: create, list, delete")
	id := flag.Int64("id", 0, "subscription id (for delete)")
	flag.Parse()

	cfg := config.Load()
	client := strava.NewSubscriptionClient(cfg.StravaClientID, cfg.StravaClientSecret)
	ctx := context.Background()

	switch *action {
	case "create":
		callback, err := url.JoinPath(cfg.HostURL, "/v1/strava/webhook")
		if err != nil {
			log.Fatalf("invalid host url %q: %v", cfg.HostURL, err)
		}
		sub, err := client.Create(ctx, callback, cfg.StravaVerifyToken)
		if err != nil {
			log.Fatalf("create subscription: %v", err)
		}
		printJSON(sub)
	case "list":
		subs, err := client.List(ctx)
		if err != nil {
			log.Fatalf("list subscriptions: %v", err)
		}
		printJSON(subs)
	case "delete":
		if *id == 0 {
			log.Fatal("delete requires -id")
		}
		if err := client.Delete(ctx, *id); err != nil {
			log.Fatalf("delete subscription %d: %v", *id, err)
		}
		fmt.Printf("deleted subscription %d\n", *id)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		log.Fatalf("encode output: %v", err)
	}
}
