// Command kbcheck validates an intent catalog and classifies sample
// utterances against it.
//
//	kbcheck -kb catalog.yaml "I need to book an appointment"
//	echo "where is the pharmacy" | kbcheck -lang es
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/careassist/hospital-assistant/internal/chat"
	"github.com/careassist/hospital-assistant/internal/knowledge"
	"github.com/careassist/hospital-assistant/internal/sentiment"
)

func main() {
	kbPath := flag.String("kb", "", "intent catalog YAML (default: embedded catalog)")
	lang := flag.String("lang", "en", "reply language")
	quiet := flag.Bool("q", false, "only validate the catalog")
	flag.Parse()

	if err := run(os.Stdin, os.Stdout, *kbPath, *lang, *quiet, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "kbcheck: %v\n", err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, kbPath, lang string, quiet bool, args []string) error {
	var (
		kb  *knowledge.Base
		err error
	)
	if kbPath == "" {
		kb, err = knowledge.Default()
	} else {
		kb, err = knowledge.LoadFile(kbPath)
	}
	if err != nil {
		return err
	}
	if err := kb.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	fmt.Fprintf(out, "catalog ok: %d intents\n", len(kb.Intents))
	if quiet {
		return nil
	}

	engine := chat.NewDefaultEngine(kb, sentiment.DefaultConfig(), nil)
	classify := func(text string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		reply, err := engine.Reply(text, lang)
		if err != nil {
			fmt.Fprintf(out, "%q\terror: %v\n", text, err)
			return
		}
		fmt.Fprintf(out, "%q\tintent=%s confidence=%.2f emergency=%t sentiment=%s/%s\n",
			text,
			reply.Intent.Tag,
			reply.Intent.Confidence,
			reply.Intent.IsEmergency,
			reply.Sentiment.Label,
			reply.Sentiment.Emotion,
		)
	}

	if len(args) > 0 {
		for _, arg := range args {
			classify(arg)
		}
		return nil
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		classify(scanner.Text())
	}
	return scanner.Err()
}
