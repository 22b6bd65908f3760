/*

Binclust clusters genomic bins into latent copy-number states using
read-depth and B-allele frequency across tumor samples, with genomic
locality enforced by a constrained Gaussian hidden Markov model.

The basic usage of binclust looks like this:

	binclust --outbins bbc.tsv --outsegments seg.tsv combined.bb

, this will sweep cluster counts from 2 to 30 and keep the silhouette
winner. You can change the transition regime and the decoding:

	binclust --transmat free --decoding viterbi --outbins bbc.tsv --outsegments seg.tsv combined.bb

To see all the options run:

	binclust -h

*/
package main

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"

	"github.com/cbglab/binclust/bintab"
	"github.com/cbglab/binclust/checkpoint"
	"github.com/cbglab/binclust/cluster"
	"github.com/cbglab/binclust/track"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("binclust")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("binclust", "locality-aware copy-number bin clustering").Version(version)

	// input bin table
	bbFileName = app.Arg("bbfile", "combined bin table (BB file)").Required().ExistingFile()

	// model parameters
	minK   = app.Flag("minK", "minimum number of clusters to consider").Default("2").Int()
	maxK   = app.Flag("maxK", "maximum number of clusters to consider").Default("30").Int()
	exactK = app.Flag("exactK", "use this exact number of clusters (overrides -minK and -maxK)").Default("0").Int()
	transmat = app.Flag("transmat", "transition matrix regime "+
		"(fixed: frozen initial matrix, "+
		"diag: single learned self-transition probability, "+
		"free: fully learned)").Default("diag").Enum("fixed", "diag", "free")
	decoding = app.Flag("decoding", "decoding algorithm (viterbi or map)").
			Default("map").Enum("viterbi", "map")
	covar = app.Flag("covar", "emission covariance type (diag or full)").
		Default("diag").Enum("diag", "full")
	tau        = app.Flag("tau", "initial off-diagonal transition probability").Default("1e-5").Float64()
	diploidBAF = app.Flag("diploidbaf", "maximum BAF deviation from 0.5 to call a segment balanced").
			Default("0.1").Float64()

	// technical
	nThreads   = app.Flag("nt", "number of threads to use").Int()
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outBinsF = app.Flag("outbins", "write the clustered bin table to a file").Required().String()
	outSegF  = app.Flag("outsegments", "write the segment summary table to a file").Required().String()
	checkpF  = app.Flag("checkpoint", "bolt database for resumable sweep results").String()
	plotF    = app.Flag("plot", "write a silhouette-vs-K plot to a file (png)").String()
	outLogF  = app.Flag("log", "write log to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json summary to a file").String()
)

func run() (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{}

	s := newSettings()

	log.Info("Reading the combined BB file")
	bbFile, err := os.Open(*bbFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer bbFile.Close()

	table, err := bintab.Read(bbFile)
	if err != nil {
		log.Fatal(err)
	}

	tracks, samples, err := track.Build(table)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Read %d bins, %d samples, %d arm tracks",
		len(table.Bins), len(samples), len(tracks))

	var labels []int
	if s.minK == 1 && s.maxK == 1 {
		log.Notice("Found exactK=1, returning trivial clustering")
		labels = cluster.Trivial(table.NPositions())
	} else {
		if s.minK <= 1 {
			log.Warning("model selection does not support comparing K=1 to K>1; K=1 will be ignored")
		}
		log.Info("Clustering bins by RD and BAF across samples using locality")

		var db *bolt.DB
		if *checkpF != "" {
			db, err = bolt.Open(*checkpF, 0666, nil)
			if err != nil {
				log.Fatal("Error opening checkpoint database:", err)
			}
			defer db.Close()
		}

		sel, err := cluster.Select(tracks, cluster.Config{
			MinK:    s.minK,
			MaxK:    s.maxK,
			Regime:  s.regime,
			Decoder: s.decoder,
			Covar:   s.covarType,
			Tau:     s.tau,
			Store:   checkpoint.NewSweepStore(db),
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Noticef("Selected K=%d (silhouette=%f)", sel.BestK, sel.BestScore)

		labels = sel.Labels
		summary.BestK = sel.BestK
		summary.BestScore = sel.BestScore
		summary.Scores = make(map[int]float64, len(sel.Results))
		for k, r := range sel.Results {
			summary.Scores[k] = r.Score
		}

		if *plotF != "" {
			if err := plotScores(sel, *plotF); err != nil {
				log.Error("Error writing score plot:", err)
			}
		}
	}

	labels = cluster.Reindex(labels)
	if err := table.SetClusters(labels, len(samples)); err != nil {
		log.Fatal(err)
	}

	log.Info("Checking consistency of results")
	if err := cluster.CheckLabels(table, len(samples)); err != nil {
		log.Fatal(err)
	}

	log.Info("Writing output")
	binsFile, err := os.Create(*outBinsF)
	if err != nil {
		log.Fatal("Error creating bin output file:", err)
	}
	defer binsFile.Close()
	if err := table.WriteBins(binsFile); err != nil {
		log.Fatal("Error writing bin table:", err)
	}

	segments, err := cluster.Segments(table, s.diploidBAF)
	if err != nil {
		log.Fatal(err)
	}
	segFile, err := os.Create(*outSegF)
	if err != nil {
		log.Fatal("Error creating segment output file:", err)
	}
	defer segFile.Close()
	if err := bintab.WriteSegments(segFile, segments); err != nil {
		log.Fatal("Error writing segment table:", err)
	}

	log.Notice("Done")
	summary.Time = time.Since(startTime).Seconds()
	return
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	for _, module := range []string{"binclust", "bintab", "track", "dist", "hmm", "cluster", "checkpoint"} {
		logging.SetLevel(level, module)
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	rand.Seed(*seed)
	runtime.GOMAXPROCS(*nThreads)

	effectiveNThreads := runtime.GOMAXPROCS(0)
	log.Infof("Using threads: %d.\n", effectiveNThreads)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	summary := run()
	summary.NThreads = effectiveNThreads
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed

	if *jsonF != "" {
		writeJSONSummary(summary, *jsonF)
	}
}
