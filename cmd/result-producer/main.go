package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"

	"github.com/chess-tournaments/internal/domain"
)

var (
	decisiveEndings = []domain.GameEnding{domain.EndingCheckmate, domain.EndingResignation, domain.EndingTimeout}
	drawnEndings    = []domain.GameEnding{domain.EndingAgreement, domain.EndingStalemate, domain.EndingRepetition}
)

// envelope mirrors the API response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func fetch(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	if !env.Success {
		return fmt.Errorf("%s: %s", url, env.Error)
	}
	return json.Unmarshal(env.Data, out)
}

// randomOutcome plays a game: white wins 45%, black 35%, the rest are drawn
func randomOutcome(m domain.Match) domain.GameOutcome {
	outcome := domain.GameOutcome{
		MatchID:   m.ID,
		MoveCount: rand.Intn(80) + 20,
	}
	switch roll := rand.Intn(100); {
	case roll < 45:
		outcome.Result = domain.ResultWhiteWin
		outcome.Ending = decisiveEndings[rand.Intn(len(decisiveEndings))]
	case roll < 80:
		outcome.Result = domain.ResultBlackWin
		outcome.Ending = decisiveEndings[rand.Intn(len(decisiveEndings))]
	default:
		outcome.Result = domain.ResultDraw
		outcome.Ending = drawnEndings[rand.Intn(len(drawnEndings))]
	}
	return outcome
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "game-results", "Kafka topic")
	apiURL := flag.String("api", "http://localhost:8080", "Tournament API base URL")
	tournamentID := flag.String("tournament", "", "Tournament ID to play out")
	gamesPerSecond := flag.Int("rate", 2, "Results per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = until the tournament ends)")
	flag.Parse()

	if *tournamentID == "" {
		log.Fatal("-tournament is required")
	}
	if *gamesPerSecond <= 0 {
		*gamesPerSecond = 1
	}
	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  ♟  Game Result Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  API:              %s\n", *apiURL)
	fmt.Printf("  Tournament:       %s\n", *tournamentID)
	fmt.Printf("  Results/sec:      %d\n", *gamesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	client := &http.Client{Timeout: 5 * time.Second}
	base := strings.TrimRight(*apiURL, "/") + "/api/v1/tournaments/" + *tournamentID

	// Matches already sent; the consumer ignores repeats but there is no point flooding it
	sent := make(map[string]bool)

	ticker := time.NewTicker(time.Second / time.Duration(*gamesPerSecond))
	defer ticker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}

			var tournament domain.Tournament
			if err := fetch(client, base, &tournament); err != nil {
				log.Printf("Failed to load tournament: %v", err)
				continue
			}
			if tournament.Status.Terminal() {
				fmt.Printf("\nTournament %s is %s\n", tournament.Name, tournament.Status)
				shutdown("Tournament over")
				return
			}

			var matches []domain.Match
			url := fmt.Sprintf("%s/matches?round=%d", base, tournament.CurrentRound)
			if err := fetch(client, url, &matches); err != nil {
				log.Printf("Failed to load matches: %v", err)
				continue
			}

			for _, m := range matches {
				// replays reuse the match id, so key on the replay counter too
				key := fmt.Sprintf("%s/%d", m.ID, m.ReplayCount)
				if m.Status.Finished() || sent[key] {
					continue
				}
				outcome := randomOutcome(m)
				data, err := json.Marshal(outcome)
				if err != nil {
					log.Printf("Failed to marshal result: %v", err)
					continue
				}
				producer.Input() <- &sarama.ProducerMessage{
					Topic: *topic,
					Key:   sarama.StringEncoder(m.ID),
					Value: sarama.ByteEncoder(data),
				}
				sent[key] = true
				fmt.Printf("[%s] round %d  %s vs %s  %s (%s)\n",
					time.Now().Format("15:04:05"),
					m.RoundNumber,
					m.WhitePlayerID,
					m.BlackPlayerID,
					outcome.Result,
					outcome.Ending,
				)
				break
			}
		}
	}
}
