// Command chat is an interactive terminal chatbot with long-term memory.
// Every user turn is answered with semantically retrieved memories in
// context, and a background coordinator reconciles new facts into the
// store without blocking the conversation.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/becomeliminal/recall/llm"
	"github.com/becomeliminal/recall/memory"
	"github.com/becomeliminal/recall/memory/embedder/cached"
	"github.com/becomeliminal/recall/memory/index/chromem"
)

const (
	// transcriptWindow is how many recent turns are sent to the responder.
	transcriptWindow = 10
	// reconcileWindow is how many recent turns the background reconciler sees.
	reconcileWindow = 6
	// proactiveRecall is how many recent memories are shown at session start.
	proactiveRecall = 5
)

type app struct {
	userID     int
	store      *memory.Store
	embedder   memory.Embedder
	responder  *llm.Responder
	summarizer *llm.Summarizer
	coord      *memory.Coordinator

	transcript []memory.Turn
	closeOnce  sync.Once
}

func main() {
	_ = godotenv.Load()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "ANTHROPIC_API_KEY is not set")
		os.Exit(1)
	}

	dataDir := os.Getenv("RECALL_DATA_DIR")
	if dataDir == "" {
		dataDir = "./recall_db"
	}
	index, err := chromem.NewPersistent(dataDir, memory.DefaultDimensions)
	if err != nil {
		log.Fatalf("[CHAT] Failed to open memory index: %v", err)
	}
	store := memory.NewStore(index, nil)

	base, err := newEmbedder()
	if err != nil {
		log.Fatalf("[CHAT] Failed to initialize embedder: %v", err)
	}
	embedder, err := cached.New(base, 0)
	if err != nil {
		log.Fatalf("[CHAT] Failed to initialize embedding cache: %v", err)
	}
	defer embedder.Close()

	client := llm.NewClient(llm.Config{APIKey: apiKey, Model: os.Getenv("RECALL_MODEL")})
	reconciler := memory.NewReconciler(store, embedder, llm.NewDecider(client), llm.NewExtractor(client))

	a := &app{
		store:      store,
		embedder:   embedder,
		responder:  llm.NewResponder(client),
		summarizer: llm.NewSummarizer(client),
		coord:      memory.NewCoordinator(reconciler.ReconcileTurn),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println()
		a.shutdown()
		os.Exit(0)
	}()

	a.run()
}

func (a *app) run() {
	fmt.Println("============================================")
	fmt.Println("  recall — a chatbot that remembers you")
	fmt.Println("============================================")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	a.userID = promptUserID(scanner)
	a.showRecentMemories()
	fmt.Println("Type /help for commands. Ctrl+C or /quit to leave.")
	fmt.Println()

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if a.handleCommand(scanner, input) {
				return
			}
			continue
		}
		a.handleTurn(input)
	}
	a.shutdown()
}

func promptUserID(scanner *bufio.Scanner) int {
	for {
		fmt.Print("Enter your user ID (a number): ")
		if !scanner.Scan() {
			os.Exit(0)
		}
		id, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && id > 0 {
			return id
		}
		fmt.Println("Please enter a positive number.")
	}
}

// showRecentMemories greets a returning user with their most recent
// memories so the session starts with shared context.
func (a *app) showRecentMemories() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := a.store.FetchAll(ctx, a.userID)
	if err != nil {
		log.Printf("[CHAT] Failed to load memories for user %d: %v", a.userID, err)
		return
	}
	current := records[:0]
	for _, rec := range records {
		if rec.IsCurrent {
			current = append(current, rec)
		}
	}
	if len(current) == 0 {
		fmt.Println("Nice to meet you! I don't have any memories of you yet.")
		return
	}
	sort.Slice(current, func(i, j int) bool {
		return current[i].CreatedAt.After(current[j].CreatedAt)
	})
	if len(current) > proactiveRecall {
		current = current[:proactiveRecall]
	}
	fmt.Println("Welcome back! Here's what I remember most recently:")
	for _, rec := range current {
		fmt.Printf("  - %s\n", rec.Text)
	}
	fmt.Println()
}

// handleCommand runs a slash command and reports whether to exit.
func (a *app) handleCommand(scanner *bufio.Scanner, input string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch strings.Fields(input)[0] {
	case "/quit", "/exit":
		a.shutdown()
		return true

	case "/memories":
		records, err := a.store.FetchAll(ctx, a.userID)
		if err != nil {
			fmt.Printf("Could not list memories: %v\n", err)
			return false
		}
		if len(records) == 0 {
			fmt.Println("No memories stored yet.")
			return false
		}
		sort.Slice(records, func(i, j int) bool {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		})
		for _, rec := range records {
			marker := " "
			if !rec.IsCurrent {
				marker = "x"
			}
			fmt.Printf("  [%s] %s (%s)\n", marker, rec.Text, rec.CreatedAt.Format("2006-01-02"))
		}
		fmt.Println("  [x] = superseded by newer information")

	case "/categories":
		cats, err := a.store.ListCategories(ctx, a.userID)
		if err != nil {
			fmt.Printf("Could not list categories: %v\n", err)
			return false
		}
		if len(cats) == 0 {
			fmt.Println("No categories yet.")
			return false
		}
		fmt.Println("Categories:", strings.Join(cats, ", "))

	case "/forget":
		fmt.Print("This permanently erases everything I know about you. Type 'yes' to confirm: ")
		if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "yes" {
			fmt.Println("Cancelled.")
			return false
		}
		if err := a.store.DeleteAllForUser(ctx, a.userID); err != nil {
			fmt.Printf("Could not erase memories: %v\n", err)
			return false
		}
		fmt.Println("All memories erased.")

	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /memories   list everything I remember about you")
		fmt.Println("  /categories list memory categories")
		fmt.Println("  /forget     permanently erase all your memories")
		fmt.Println("  /quit       save a session summary and exit")

	default:
		fmt.Println("Unknown command. Type /help for commands.")
	}
	return false
}

func (a *app) handleTurn(input string) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	vector, err := a.embedder.Embed(ctx, input)
	var retrieved []memory.RetrievedMemory
	if err != nil {
		log.Printf("[CHAT] Failed to embed query: %v", err)
	} else {
		retrieved = a.store.Search(ctx, vector, a.userID, memory.SearchOptions{
			IncludeOld: memory.IsHistoricalQuery(input),
		})
	}

	a.transcript = append(a.transcript, memory.Turn{Role: memory.RoleUser, Content: input})

	window := a.transcript
	if len(window) > transcriptWindow {
		window = window[len(window)-transcriptWindow:]
	}
	reply, err := a.responder.Respond(ctx, window, retrieved)
	if err != nil {
		fmt.Printf("Sorry, something went wrong: %v\n", err)
		// Drop the failed turn so the reconciler doesn't store a
		// fact the assistant never acknowledged.
		a.transcript = a.transcript[:len(a.transcript)-1]
		return
	}
	a.transcript = append(a.transcript, memory.Turn{Role: memory.RoleAssistant, Content: reply})

	fmt.Printf("\nAssistant: %s\n\n", reply)

	recent := a.transcript
	if len(recent) > reconcileWindow {
		recent = recent[len(recent)-reconcileWindow:]
	}
	a.coord.Schedule(a.userID, recent)
}

// shutdown stores a session summary and waits for all scheduled
// background memory writes to finish.
func (a *app) shutdown() {
	a.closeOnce.Do(func() {
		if len(a.transcript) >= 2 {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			a.saveSessionSummary(ctx)
			cancel()
		}
		if n := a.coord.InFlight(); n > 0 {
			fmt.Printf("Saving %d pending memory update(s)...\n", n)
		}
		// Memory writes are irreversible user data: the drain gets no
		// deadline, every scheduled job completes before the process exits.
		for _, res := range a.coord.DrainAll(context.Background()) {
			if res.Err != nil {
				log.Printf("[CHAT] Background memory update for user %d failed: %v", res.UserID, res.Err)
			}
		}
		fmt.Println("Goodbye! I'll remember this conversation.")
	})
}

func (a *app) saveSessionSummary(ctx context.Context) {
	summary, err := a.summarizer.Summarize(ctx, a.transcript)
	if err != nil {
		log.Printf("[CHAT] Failed to summarize session: %v", err)
		return
	}
	if summary == "" {
		return
	}
	text := fmt.Sprintf("[Session %s] %s", time.Now().Format("2006-01-02"), summary)
	vector, err := a.embedder.Embed(ctx, text)
	if err != nil {
		log.Printf("[CHAT] Failed to embed session summary: %v", err)
		return
	}
	err = a.store.Create(ctx, []memory.MemoryRecord{{
		UserID:     a.userID,
		Text:       text,
		Categories: []string{"session_summary"},
		Embedding:  vector,
		CreatedAt:  time.Now().UTC(),
	}})
	if err != nil {
		log.Printf("[CHAT] Failed to store session summary: %v", err)
	}
}
