package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"

	"github.com/regenmon/regentheme"
	"github.com/regenmon/regentheme/music"
	"github.com/regenmon/regentheme/oto"
	"github.com/regenmon/regentheme/storage"
	"github.com/regenmon/regentheme/synth"
	"github.com/regenmon/regentheme/transport"
	"github.com/regenmon/regentheme/version"
)

const defaultStatus = `[{{ .State | upper }}] {{ .Label }}{{ if .Alert }} - {{ .Alert }}{{ end }}`

type status struct {
	State   string
	Playing bool
	Label   string
	Alert   string
}

func main() {
	help := flag.Bool("h", false, "Show help.")
	configFile := flag.String("config", "", "Theme .yml file to play instead of the built-in theme.")
	dumpTheme := flag.Bool("dump-theme", false, "Write the theme as .yml and exit.")
	directory := flag.String("o", "", "Directory where to output all files. The directory and its parents are created if needed. By default, the working directory.")
	rawOut := flag.Bool("r", false, "Render the theme to a .raw file. By default, saves stereo float32 buffer to disk.")
	wavOut := flag.Bool("w", false, "Render the theme to a .wav file. By default, saves stereo float32 buffer to disk.")
	midiOut := flag.Bool("m", false, "Export the theme as a standard MIDI file.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	loops := flag.Int("loops", 4, "Number of loops to render or export.")
	seed := flag.Uint64("seed", 0, "Seed for the ambient notes. 0 picks a random seed.")
	storagePath := flag.String("storage", "", "Preference file. By default, storage.yml in the user config directory.")
	reset := flag.Bool("reset", false, "Forget that the music was turned off.")
	locale := flag.String("locale", os.Getenv("LANG"), "Locale of the toggle labels.")
	statusTmpl := flag.String("status", defaultStatus, "Template of the status line.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if *help {
		flag.Usage()
		os.Exit(0)
	}
	theme := regentheme.DefaultTheme()
	if *configFile != "" {
		f, err := os.Open(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not open theme: %v\n", err)
			os.Exit(1)
		}
		theme, err = regentheme.ReadTheme(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not read theme %v: %v\n", *configFile, err)
			os.Exit(1)
		}
	}
	var rnd regentheme.RandomSource
	if *seed != 0 {
		rnd = rand.New(rand.NewPCG(*seed, *seed))
	}
	output := func(extension string, contents []byte) error {
		dir := *directory
		if dir == "" {
			var err error
			dir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
			}
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("could not create output directory %v: %v", dir, err)
		}
		f := filepath.Join(dir, "regentheme"+extension)
		if err := os.WriteFile(f, contents, 0644); err != nil {
			return fmt.Errorf("could not write file %v: %v", f, err)
		}
		fmt.Printf("wrote %v (%v)\n", f, humanize.Bytes(uint64(len(contents))))
		return nil
	}
	if *dumpTheme || *rawOut || *wavOut || *midiOut {
		if err := export(theme, *loops, rnd, *dumpTheme, *rawOut, *wavOut, *midiOut, *pcm, output); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	tmpl, err := template.New("status").Funcs(sprig.TxtFuncMap()).Parse(*statusTmpl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not parse status template: %v\n", err)
		os.Exit(1)
	}
	if *storagePath == "" {
		if *storagePath, err = storage.DefaultPath(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	prefs := storage.NewFile(*storagePath)
	if *reset {
		if err := prefs.Remove(music.PreferenceKey); err != nil {
			fmt.Fprintf(os.Stderr, "could not reset preference: %v\n", err)
			os.Exit(1)
		}
	}
	if err := session(theme, rnd, prefs, tmpl, *locale); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func export(theme regentheme.Theme, loops int, rnd regentheme.RandomSource, dump, raw, wav, midi, pcm bool, output func(string, []byte) error) error {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if dump {
		var buf bytes.Buffer
		if err := regentheme.WriteTheme(&buf, theme); err != nil {
			return err
		}
		if err := output(".yml", buf.Bytes()); err != nil {
			return fmt.Errorf("error outputting .yml file: %v", err)
		}
	}
	if midi {
		var buf bytes.Buffer
		if err := theme.WriteSMF(&buf, loops, rnd); err != nil {
			return fmt.Errorf("could not generate .mid file: %v", err)
		}
		if err := output(".mid", buf.Bytes()); err != nil {
			return fmt.Errorf("error outputting .mid file: %v", err)
		}
	}
	if !raw && !wav {
		return nil
	}
	buffer, err := music.Render(theme, loops, rnd)
	if err != nil {
		return fmt.Errorf("music.Render failed: %v", err)
	}
	if raw {
		data, err := buffer.Raw(pcm)
		if err != nil {
			return fmt.Errorf("could not generate .raw file: %v", err)
		}
		if err := output(".raw", data); err != nil {
			return fmt.Errorf("error outputting .raw file: %v", err)
		}
	}
	if wav {
		data, err := buffer.Wav(pcm)
		if err != nil {
			return fmt.Errorf("could not generate .wav file: %v", err)
		}
		if err := output(".wav", data); err != nil {
			return fmt.Errorf("error outputting .wav file: %v", err)
		}
	}
	return nil
}

func session(theme regentheme.Theme, rnd regentheme.RandomSource, prefs storage.Store, tmpl *template.Template, locale string) error {
	audioContext, err := oto.NewContext()
	if err != nil {
		return fmt.Errorf("could not acquire oto AudioContext: %v", err)
	}
	defer audioContext.Close()
	clock := transport.New(regentheme.SampleRate)
	player := music.NewPlayer(clock)
	out := player.Output(audioContext)
	broker := music.NewBroker()
	controller := music.NewController(music.Config{
		Clock:       clock,
		Destination: player,
		Synther:     synth.Synther{SampleRate: regentheme.SampleRate},
		Unlocker:    audioContext,
		Preferences: prefs,
		Rand:        rnd,
		Theme:       theme,
		Broker:      broker,
	})
	doc := music.NewDocument()
	go ui(broker, tmpl, locale)
	controller.Mount(doc)
	fmt.Printf("t + enter toggles the music, q + enter quits, any other line is a click. [%v]\n", music.Label(locale, false))
	scanner := bufio.NewScanner(os.Stdin)
loop:
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "q":
			break loop
		case "t":
			controller.Toggle()
		default:
			doc.Dispatch(music.Click)
		}
	}
	controller.Close()
	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	if err := out.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	music.TrySend(broker.CloseUI, struct{}{})
	select {
	case <-broker.FinishedUI:
	case <-time.After(3 * time.Second):
	}
	fmt.Printf("played for %v\n", durafmt.Parse(controller.PlayTime()).LimitFirstN(2))
	return nil
}

func ui(broker *music.Broker, tmpl *template.Template, locale string) {
	defer close(broker.FinishedUI)
	for {
		select {
		case <-broker.CloseUI:
			return
		case msg := <-broker.ToUI:
			s := status{State: msg.State.String(), Playing: msg.IsPlaying, Label: music.Label(locale, msg.IsPlaying)}
			if msg.HasAlert {
				s.Alert = msg.Alert.Message
			}
			if err := tmpl.Execute(os.Stdout, s); err != nil {
				fmt.Fprintf(os.Stderr, "could not execute status template: %v\n", err)
				continue
			}
			fmt.Println()
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "regentheme plays and exports the regenmon background theme.\nUsage: %s [flags]\n", os.Args[0])
	flag.PrintDefaults()
}
