package main

import (
	"flag"
	"log"
	"path/filepath"
	"strings"

	"github.com/sugarme/gotch"

	"github.com/sugarme/attnunet/unet"
)

// flag variables
var (
	InputStr   string
	TargetPath string
	ModelPath  string
	OutDir     string
	NamesStr   string
	Cuda       bool
	Depthwise  bool
	Bilinear   bool
	task       string
	Device     gotch.Device
)

// model parameters
var (
	Channels int // number of attention channels when no input is given
	Classes  int // number of output classes
	Size     int // input image size
)

func init() {
	flag.StringVar(&task, "task", "check", "specify task to run: check|init|predict")
	flag.StringVar(&InputStr, "input", "", "specify comma separated attention map images, one per channel")
	flag.StringVar(&TargetPath, "target", "", "specify optional ground-truth mask image (gray value = class index)")
	flag.StringVar(&ModelPath, "model", "./model/attnunet.ot", "specify full path to model weight '.ot' file.")
	flag.StringVar(&OutDir, "out", "./output", "specify output directory")
	flag.StringVar(&NamesStr, "names", "", "specify comma separated class names")
	flag.BoolVar(&Cuda, "cuda", false, "specify whether using CUDA or not.")
	flag.BoolVar(&Depthwise, "depthwise", true, "specify whether using depthwise-separable convolutions.")
	flag.BoolVar(&Bilinear, "bilinear", true, "specify whether upsampling is bilinear (or transposed conv).")
	flag.IntVar(&Channels, "channels", 4, "specify number of attention channels for 'check' and 'init' tasks")
	flag.IntVar(&Classes, "classes", 3, "specify number of output classes")
	flag.IntVar(&Size, "size", 64, "specify input image size")
}

func main() {
	flag.Parse()

	ModelPath = absPath(ModelPath)
	OutDir = absPath(OutDir)

	Device = gotch.CPU
	if Cuda {
		Device = gotch.NewCuda().CudaIfAvailable()
	}

	switch task {
	case "check":
		runCheckModel()
	case "init":
		runInit()
	case "predict":
		runPredict()
	default:
		log.Fatalf("Unspecified/Invalid task option: '%v'\n", task)
	}
}

func absPath(p string) string {
	a, err := filepath.Abs(p)
	if err != nil {
		log.Fatal(err)
	}
	return a
}

func modelConfig() *unet.Config {
	return &unet.Config{
		Depthwise: Depthwise,
		Bilinear:  Bilinear,
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
