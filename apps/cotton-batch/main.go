package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sdeoras/cotton/advice"
	"github.com/sdeoras/cotton/config"
	"github.com/sdeoras/cotton/diagnosis"
	"github.com/sdeoras/cotton/model"
	"github.com/sirupsen/logrus"
)

var (
	inDir      *string
	outDir     *string
	jobID      *string
	batchSize  *int
	numBatches *int
)

func main() {
	// flag management
	inDir = flag.String("input-dir", "/tf/images", "input dir")
	outDir = flag.String("out-dir", "/tf/out", "output dir")
	jobID = flag.String("job-id", "default", "job id")
	batchSize = flag.Int("batch-size", 100, "batch size")
	numBatches = flag.Int("num-batches", 0, "number of batches to run, 0 for all")
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		logrus.Fatal(err)
	}
	if err := cfg.Log.Setup(); err != nil {
		logrus.Fatal(err)
	}

	if *batchSize <= 0 {
		logrus.Fatal("--batch-size has to be a positive integer")
	}
	if *numBatches < 0 {
		logrus.Fatal("--num-batches cannot be negative")
	}

	if err := run(cfg); err != nil {
		logrus.Fatal(err)
	}
}

func getFileList(inputDir string) ([]string, error) {
	var files []string

	entries, err := ioutil.ReadDir(inputDir)
	if err != nil {
		return nil, err
	}

	for _, f := range entries {
		if f.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(f.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, f.Name())
		}
	}

	return files, nil
}

func run(cfg *config.Config) error {
	t0 := time.Now()
	var b bytes.Buffer
	bw := bufio.NewWriter(&b)

	if *jobID == "default" {
		*jobID = uuid.New().String()
		logrus.Info("using job id: ", *jobID)
	}

	labels := advice.Classes()
	if cfg.Model.LabelsPath != "" {
		var err error
		if labels, err = model.ReadLabels(cfg.Model.LabelsPath); err != nil {
			return err
		}
	}

	logrus.Info("loading model")
	gateway, err := model.Load(model.Options{
		Path:     cfg.Model.Path,
		Tag:      cfg.Model.Tag,
		InputOp:  cfg.Model.InputOp,
		OutputOp: cfg.Model.OutputOp,
		Height:   cfg.Model.Height,
		Width:    cfg.Model.Width,
	})
	if err != nil {
		return err
	}
	defer gateway.Close()
	logrus.Info("model loaded")

	height, width := gateway.InputSize()
	var pre diagnosis.Preprocessor
	if cfg.Model.Preprocess == "tf" {
		tr, err := model.NewTransformer(height, width, float32(cfg.Model.Mean), float32(cfg.Model.Scale))
		if err != nil {
			return err
		}
		defer tr.Close()
		pre = tr
	} else {
		if pre, err = diagnosis.NewResizer(height, width, float32(cfg.Model.Mean), float32(cfg.Model.Scale)); err != nil {
			return err
		}
	}

	filenames, err := getFileList(*inDir)
	if err != nil {
		return err
	}
	logrus.WithField("count", len(filenames)).Info("scanned input dir")

	ctx := context.Background()
	for i := 0; *numBatches == 0 || i < *numBatches; i++ {
		start := i * (*batchSize)
		if start >= len(filenames) {
			break
		}
		end := start + *batchSize
		if end > len(filenames) {
			end = len(filenames)
		}

		t := time.Now()
		for _, name := range filenames[start:end] {
			tLoop := time.Now()

			fileName := filepath.Join(*inDir, name)
			data, err := ioutil.ReadFile(fileName)
			if err != nil {
				logrus.Error("error on file read: ", err, ", ", fileName)
				continue
			}
			fileIOTime := time.Since(tLoop)
			tLoop = time.Now()

			img, err := pre.Preprocess(data)
			if err != nil {
				logrus.Error("error on preprocessing image: ", err, ", ", fileName)
				continue
			}
			probabilities, err := gateway.Classify(ctx, img)
			if err != nil {
				logrus.Error("error in running session: ", err, ", ", fileName)
				continue
			}
			res, err := diagnosis.Interpret(probabilities, labels)
			if err != nil {
				logrus.Error("error interpreting output: ", err, ", ", fileName)
				continue
			}
			computeTime := time.Since(tLoop)

			jb, err := json.Marshal(ClassifyResult{
				Filename:    name,
				Label:       res.Label,
				Conf:        res.Confidence,
				FileSize:    uint64(len(data)),
				FileIOTime:  fileIOTime,
				ComputeTime: computeTime,
				Labels:      res.Sorted(),
			})
			if err != nil {
				logrus.Error("error in json marshaling: ", err, ", ", fileName)
				continue
			}
			if _, err := bw.Write(append(jb, '\n')); err != nil {
				return err
			}
		}
		logrus.WithField("jobID", *jobID).
			WithField("batch", i).
			WithField("duration", time.Since(t)).
			Info("batch done")
	}

	// output
	timeStamp := strconv.FormatInt(time.Now().UnixNano(), 16)
	dirName := filepath.Join(*outDir, *jobID)
	fileName := filepath.Join(dirName, *jobID+"_"+timeStamp+".json")

	if err := os.MkdirAll(dirName, 0755); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if jb := b.Bytes(); len(jb) > 0 {
		if err := ioutil.WriteFile(fileName, jb, 0644); err != nil {
			return err
		}
		logrus.Info("writing output: ", fileName)
	}

	logrus.Info("all done: ", time.Since(t0))
	return nil
}
