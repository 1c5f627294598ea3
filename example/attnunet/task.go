package main

import (
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/attnunet/imgutil"
	"github.com/sugarme/attnunet/metric"
	"github.com/sugarme/attnunet/report"
	"github.com/sugarme/attnunet/unet"
)

func runCheckModel() {
	vs := nn.NewVarStore(Device)
	net, err := unet.NewAttentionUNet(vs.Root(), int64(Channels), int64(Classes), modelConfig())
	if err != nil {
		log.Fatal(err)
	}

	printVars(vs)

	x := ts.MustRandn([]int64{1, int64(Channels), 32, 32}, gotch.Float, Device)
	ts.NoGrad(func() {
		logit := net.ForwardT(x, false)
		fmt.Printf("input: %v => output: %v\n", x.MustSize(), logit.MustSize())
		logit.MustDrop()
	})
	x.MustDrop()
}

func runInit() {
	vs := nn.NewVarStore(Device)
	_, err := unet.NewAttentionUNet(vs.Root(), int64(Channels), int64(Classes), modelConfig())
	if err != nil {
		log.Fatal(err)
	}

	err = os.MkdirAll(filepath.Dir(ModelPath), 0755)
	if err != nil {
		log.Fatal(err)
	}
	err = vs.Save(ModelPath)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Initial weights saved to %v\n", ModelPath)
}

func runPredict() {
	paths := splitList(InputStr)
	if len(paths) == 0 {
		log.Fatal("No input attention maps. Use '-input a.png,b.png,...'")
	}

	var imgs []image.Image
	for _, p := range paths {
		img, err := imgutil.ReadImage(p)
		if err != nil {
			log.Fatal(err)
		}
		imgs = append(imgs, img)
	}
	data, shape, err := imgutil.AttentionMaps(imgs, Size, Size)
	if err != nil {
		log.Fatal(err)
	}
	input := ts.MustOfSlice(data).MustView(shape, true).MustTo(Device, true)

	vs := nn.NewVarStore(Device)
	net, err := unet.NewAttentionUNet(vs.Root(), int64(len(paths)), int64(Classes), modelConfig())
	if err != nil {
		log.Fatal(err)
	}
	err = vs.Load(ModelPath)
	if err != nil {
		log.Fatal(err)
	}

	var logit *ts.Tensor
	ts.NoGrad(func() {
		logit, err = net.Forward(input, false)
	})
	input.MustDrop()
	if err != nil {
		log.Fatal(err)
	}
	logit = logit.MustTo(gotch.CPU, true)
	defer logit.MustDrop()

	pred, err := metric.Predict(logit)
	if err != nil {
		log.Fatal(err)
	}

	err = os.MkdirAll(OutDir, 0755)
	if err != nil {
		log.Fatal(err)
	}

	classMap, err := imgutil.Colorize(pred, Size, Size)
	if err != nil {
		log.Fatal(err)
	}
	err = imgutil.SaveImage(classMap, filepath.Join(OutDir, "classmap.png"))
	if err != nil {
		log.Fatal(err)
	}

	names := splitList(NamesStr)
	counts, err := report.ClassCounts(pred, Classes)
	if err != nil {
		log.Fatal(err)
	}
	err = report.WriteCSV(report.PredictionSummary(counts, names), filepath.Join(OutDir, "summary.csv"))
	if err != nil {
		log.Fatal(err)
	}
	err = report.SaveHistogram(counts, names, filepath.Join(OutDir, "histogram.png"))
	if err != nil {
		log.Fatal(err)
	}

	if TargetPath != "" {
		evaluate(logit, pred, names)
	}

	fmt.Printf("Prediction written to %v\n", OutDir)
}

func evaluate(logit *ts.Tensor, pred []int64, names []string) {
	mask, err := imgutil.ReadImage(TargetPath)
	if err != nil {
		log.Fatal(err)
	}
	target := imgutil.ClassMap(mask, Size, Size)

	cm, err := metric.ConfusionMatrix(pred, target, Classes)
	if err != nil {
		log.Fatal(err)
	}
	err = report.WriteCSV(report.EvalSummary(cm, names), filepath.Join(OutDir, "eval.csv"))
	if err != nil {
		log.Fatal(err)
	}

	targetTs := ts.MustOfSlice(target).MustView([]int64{1, int64(Size), int64(Size)}, true)
	loss := metric.CrossEntropy(logit, targetTs)
	lossVal := loss.Float64Values()[0]
	loss.MustDrop()

	acc, err := metric.PixelAccuracy(logit, targetTs)
	targetTs.MustDrop()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("loss: %6.4f\t pixel acc: %6.4f\t mean IoU: %6.4f\n", lossVal, acc, metric.MeanIoU(cm))
}

// printVars print variables sorted by name
func printVars(vs *nn.VarStore) {
	vars := vs.Variables()
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("%v \t\t %v\n", n, vars[n].MustSize())
	}
}
