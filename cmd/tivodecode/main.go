/*
DESCRIPTION
  tivodecode decrypts a TiVo recording file into a standard MPEG program
  or transport stream, given the owner's media access key.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package main is a command line TiVo recording decoder.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/tivo/container/tivo"
	"github.com/ausocean/tivo/decode"
	"github.com/ausocean/tivo/device/file"
	"github.com/ausocean/tivo/device/prefetch"
)

// Current software version.
const version = "v1.0.0"

// Logging configuration.
const (
	logPath      = "/var/log/tivodecode/tivodecode.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = true
)

// makEnv is consulted for the media access key when the flag is absent.
const makEnv = "TIVO_MAK"

func main() {
	var (
		inPath   = flag.String("i", "", "input recording path, or - for stdin")
		outPath  = flag.String("o", "", "output MPEG path, or - for stdout")
		mak      = flag.String("m", "", "media access key (defaults to $"+makEnv+")")
		compat   = flag.Bool("compat", false, "reproduce reference filter output byte for byte")
		metaOnly = flag.Bool("metadata", false, "dump metadata documents instead of decoding")
		info     = flag.Bool("info", false, "print envelope summary instead of decoding")
		follow   = flag.Bool("follow", false, "keep reading as the input file grows")
		verbose  = flag.Bool("v", false, "verbose logging")
		showVer  = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("tivodecode " + version)
		return
	}

	verbosity := logging.Info
	if *verbose {
		verbosity = logging.Debug
	}
	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(verbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	if *mak == "" {
		*mak = os.Getenv(makEnv)
	}
	if *mak == "" {
		log.Fatal("no media access key; use -m or set $" + makEnv)
	}
	if *inPath == "" {
		log.Fatal("no input; use -i")
	}

	in, closeIn, err := openInput(log, *inPath, *follow)
	if err != nil {
		log.Fatal("could not open input", "error", err.Error())
	}
	defer closeIn()

	switch {
	case *info:
		err = printInfo(in, *mak)
	case *metaOnly:
		err = dumpMetadata(log, in, *mak)
	default:
		var out io.WriteCloser = os.Stdout
		if *outPath != "" && *outPath != "-" {
			out, err = os.Create(*outPath)
			if err != nil {
				log.Fatal("could not create output", "error", err.Error())
			}
			defer out.Close()
		}

		var d *decode.Decoder
		d, err = decode.NewDecoder(log, decode.Compatibility(*compat))
		if err != nil {
			log.Fatal("could not create decoder", "error", err.Error())
		}
		err = d.Decode(in, out, *mak)
	}
	if err != nil {
		log.Fatal("decode failed", "error", err.Error())
	}
}

// openInput opens the recording source: stdin through the asynchronous
// prefetcher, since the producer is commonly a download that must not
// stall, or a file device with optional follow mode.
func openInput(log logging.Logger, path string, follow bool) (io.Reader, func(), error) {
	if path == "-" {
		p := prefetch.NewReader(os.Stdin, log)
		return p, func() { p.Close() }, nil
	}
	dev := file.New(log, path, follow)
	err := dev.Start()
	if err != nil {
		return nil, nil, err
	}
	return dev, func() { dev.Stop() }, nil
}

// printInfo prints an envelope summary without touching the payload.
func printInfo(in io.Reader, mak string) error {
	env, err := tivo.ReadEnvelope(in, mak)
	if err != nil {
		return err
	}
	fmt.Printf("format: %v\n", env.Format)
	fmt.Printf("mpeg offset: %#x\n", env.MPEGOffset)
	fmt.Printf("chunks: %d\n", len(env.Chunks))
	for _, c := range env.Chunks {
		fmt.Printf("  id %d kind %d: %d bytes\n", c.ID, c.Kind, len(c.Data))
	}
	return nil
}

// dumpMetadata writes each metadata document to its own XML file in the
// working directory.
func dumpMetadata(log logging.Logger, in io.Reader, mak string) error {
	docs, err := tivo.Metadata(in, mak)
	if err != nil {
		return err
	}
	for i, doc := range docs {
		name := fmt.Sprintf("metadata-%02d.xml", i)
		err = os.WriteFile(name, doc, 0o644)
		if err != nil {
			return fmt.Errorf("could not write %s: %w", name, err)
		}
		log.Info("wrote metadata document", "name", name, "bytes", len(doc))
	}
	return nil
}
