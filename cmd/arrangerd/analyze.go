package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/austinkregel/local-media/arrangerd/internal/analysis"
	"github.com/austinkregel/local-media/arrangerd/internal/audio"
	"github.com/austinkregel/local-media/arrangerd/internal/config"
)

var (
	analyzeSpeed float64
	analyzeJSON  bool
	analyzeAloud bool
	analyzeQuiet bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Play a file through the analysis engine and report what it hears",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().Float64Var(&analyzeSpeed, "speed", 4, "Playback speed when not playing aloud")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print every snapshot as a JSON line")
	analyzeCmd.Flags().BoolVar(&analyzeAloud, "aloud", false, "Play through the sound card in real time")
	analyzeCmd.Flags().BoolVarP(&analyzeQuiet, "quiet", "q", false, "Hide the progress bar")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := config.DefaultConfig()
	if _, err := os.Stat(filepath.Join(configDir, "config.json")); err == nil {
		configMgr := config.NewManager(configDir)
		if err := configMgr.Load(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = configMgr.Get()
	}

	var output audio.Output
	if analyzeAloud {
		oto, err := audio.NewOtoOutputWithConfig(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.BufferSizeMs)
		if err != nil {
			return fmt.Errorf("failed to initialize audio output: %w", err)
		}
		output = oto
	} else {
		if analyzeSpeed <= 0 {
			return fmt.Errorf("speed must be positive")
		}
		output = audio.NewPacedOutput(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.BufferSizeMs, analyzeSpeed)
	}

	player := audio.NewPlayer(output, nil)
	defer player.Close()

	ended := make(chan struct{})
	var endOnce sync.Once
	player.SetOnTrackEnd(func(string) {
		endOnce.Do(func() { close(ended) })
	})

	engine := analysis.NewEngine(cfg.Analysis.EngineConfig())

	var (
		mu     sync.Mutex
		latest *analysis.Snapshot
		count  int
	)
	encoder := json.NewEncoder(os.Stdout)
	engine.Subscribe(func(s *analysis.Snapshot, ready bool) {
		if s == nil || !ready {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		latest = s
		count++
		if analyzeJSON {
			encoder.Encode(s)
		}
	})

	ctx, cancel := signalContext()
	defer cancel()

	if err := player.Play(ctx, path); err != nil {
		return err
	}
	if err := engine.Start(ctx, player); err != nil {
		return err
	}
	defer engine.Stop()

	var bar *progressbar.ProgressBar
	if !analyzeQuiet {
		bar = progressbar.NewOptions64(int64(player.Duration()*1000),
			progressbar.OptionSetDescription(filepath.Base(path)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetWidth(50),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ended:
			break wait
		case <-ctx.Done():
			break wait
		case <-ticker.C:
			if bar != nil {
				bar.Set64(int64(player.CurrentTime() * 1000))
			}
		}
	}
	if bar != nil {
		bar.Finish()
	}

	state := engine.State()
	engine.Stop()

	mu.Lock()
	defer mu.Unlock()
	if analyzeJSON {
		return nil
	}
	if latest == nil {
		fmt.Printf("No analysis produced (engine %s)\n", state)
		return nil
	}
	printSummary(latest, count)
	return nil
}

func printSummary(s *analysis.Snapshot, count int) {
	fmt.Printf("Session %s: %d snapshots\n", s.SessionID, count)

	b := s.FrequencyBands
	fmt.Printf("Bands: subBass=%.0f bass=%.0f lowMid=%.0f mid=%.0f highMid=%.0f high=%.0f\n",
		b.SubBass, b.Bass, b.LowMid, b.Mid, b.HighMid, b.High)

	c := s.Characteristics
	fmt.Printf("Character: brightness=%.0f warmth=%.0f punch=%.0f harmonics=%.0f texture=%s attack=%s sustain=%s\n",
		c.Brightness, c.Warmth, c.Punch, c.Harmonics, c.Texture, c.Attack, c.Sustain)

	st := s.Structure
	fmt.Printf("Structure: intro=%.1fs breakdown=%.1fs drop=%.1fs outro=%.1fs\n",
		st.Intro, st.Breakdown, st.Drop, st.Outro)

	if len(s.Arrangement) == 0 {
		fmt.Println("Arrangement: none")
		return
	}
	fmt.Println("Arrangement:")
	for _, e := range s.Arrangement {
		marker := ""
		if e.Fallback {
			marker = " (fallback)"
		}
		fmt.Printf("  %-12s %-10s %6.1fs - %6.1fs %s%s\n", e.Name, e.Category, e.StartTime, e.EndTime, e.Color, marker)
	}
}
