package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/azure/danmaku-digest-bot/internal/app"
	"github.com/azure/danmaku-digest-bot/internal/config"
	"github.com/azure/danmaku-digest-bot/internal/models"
	"github.com/azure/danmaku-digest-bot/internal/sources"
)

const (
	outputDir = "test_output"
	sampleID  = "BVsample"
)

// TestNotificationService prints reports to the terminal
type TestNotificationService struct{}

func (t *TestNotificationService) SendReport(report *models.Report) error {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("📊 DANMAKU DIGEST")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("🎬 Video: %s\n", report.ContentID)
	fmt.Printf("🕒 Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Println(report.Text)

	if report.Location != "" {
		fmt.Printf("\n💾 Artifact saved to: %s\n", report.Location)
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	return nil
}

func (t *TestNotificationService) SendAlert(alert *models.Alert) error {
	fmt.Println("\n🚨 ALERT")
	fmt.Printf("Type: %s\n", alert.Type)
	fmt.Printf("Message: %s\n", alert.Message)
	return nil
}

// sampleDump builds a ten-minute video with three distinct beats
func sampleDump() sources.Dump {
	beats := []struct {
		from, to, perSec int
		texts            []string
	}{
		{0, 60, 2, []string{"opening theme is back", "hello everyone", "first"}},
		{60, 240, 1, []string{"the map looks huge", "which route is this", "nice scenery"}},
		{240, 300, 0, nil},
		{300, 480, 3, []string{"boss fight starts", "dodge the laser", "so close", "boss phase two"}},
		{480, 600, 1, []string{"credits roll", "see you next week", "great episode"}},
	}

	dump := sources.Dump{DurationSec: 600}
	for _, b := range beats {
		for sec := b.from; sec < b.to; sec++ {
			for i := 0; i < b.perSec; i++ {
				text := b.texts[(sec+i)%len(b.texts)]
				dump.Messages = append(dump.Messages, models.ReactionMessage{TimestampSec: sec, Text: text})
			}
		}
	}
	dump.Comments = []models.Comment{
		{Text: "That boss fight with the laser was insane", LikeCount: 320},
		{Text: "The opening theme is my favorite part", LikeCount: 150},
		{Text: "Subscribed after this one", LikeCount: 40},
	}
	return dump
}

func writeSample(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sampleDump(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, sampleID+".json"), data, 0644)
}

func main() {
	fmt.Println("🤖 Danmaku Digest Bot - Test Report Generator")
	fmt.Println("=============================================")

	dataDir := filepath.Join(outputDir, "data")
	if err := writeSample(dataDir); err != nil {
		fmt.Printf("❌ Error writing sample data: %v\n", err)
		os.Exit(1)
	}

	// Summaries stay off unless a provider is configured in the environment
	provider := os.Getenv("COMPLETION_PROVIDER")
	if provider == "" {
		provider = "none"
	}
	cfg := &config.Config{
		DataDir:            dataDir,
		OutputDir:          outputDir,
		CompletionProvider: provider,
		CompletionModel:    os.Getenv("COMPLETION_MODEL"),
		OllamaHost:         os.Getenv("OLLAMA_HOST"),
		Defaults:           config.DefaultParams(),
		SummaryConcurrency: 2,
	}

	service, err := app.NewAnalysisService(context.Background(), cfg, false)
	if err != nil {
		fmt.Printf("❌ Error creating analysis service: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n📊 Analyzing %d sample danmaku...\n", len(sampleDump().Messages))

	result, err := service.Analyze(context.Background(), sampleID, config.Params{})
	if err != nil {
		fmt.Printf("❌ Error analyzing sample: %v\n", err)
		os.Exit(1)
	}

	notifications := &TestNotificationService{}
	if err := notifications.SendReport(result.Report()); err != nil {
		fmt.Printf("❌ Error sending report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Test report generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Printf("   • Check the '%s' directory for the saved JSON artifact\n", outputDir)
	fmt.Println("   • Set COMPLETION_PROVIDER=ollama to include segment summaries")
	fmt.Println("   • Run 'go run ./cmd/danmaku analyze <video-id>' against a real video")
}
