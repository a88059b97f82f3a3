package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/azure/danmaku-digest-bot/internal/app"
	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/sources"
	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("🔍 Danmaku Digest Bot - Source Connectivity Test")
	fmt.Println("================================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ids := os.Args[1:]
	if len(ids) == 0 {
		ids = cfg.Watchlist
	}
	if len(ids) == 0 {
		log.Fatal("Usage: test-source <video-id>... (or set WATCHLIST)")
	}

	source := app.NewSource(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("\n📡 Testing %s source...\n", source.GetName())
	fmt.Println(strings.Repeat("-", 40))

	for _, id := range ids {
		testVideo(ctx, source, id)
	}

	fmt.Println("\n✅ Source connectivity test completed!")
}

func testVideo(ctx context.Context, source sources.Source, id string) {
	fmt.Printf("\n🔸 %s\n", id)

	duration, err := source.FetchDuration(ctx, id)
	if err != nil {
		fmt.Printf("   ❌ Duration: %v\n", err)
	} else {
		fmt.Printf("   ✅ Duration: %ds\n", duration)
	}

	messages, err := source.FetchMessages(ctx, id, models.TimeRange{FromSec: 0, ToSec: sources.SegmentSec})
	if err != nil {
		fmt.Printf("   ❌ Danmaku: %v\n", err)
	} else {
		fmt.Printf("   ✅ Danmaku: %d in the first segment\n", len(messages))
		if len(messages) > 0 {
			fmt.Printf("   📝 Sample: \"%s\"\n", messages[0].Text)
		}
	}

	comments, err := source.FetchTopComments(ctx, id, 3)
	if err != nil {
		fmt.Printf("   ❌ Comments: %v\n", err)
		return
	}
	fmt.Printf("   ✅ Comments: %d\n", len(comments))
	for _, c := range comments {
		fmt.Printf("   👍 %d: %s\n", c.LikeCount, c.Text)
	}
}
