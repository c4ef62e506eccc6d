package main

import (
	"encoding/json"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/tarstars/histogram_boosting/golang/hist_boost/hbl"
)

var logger zerolog.Logger

func decodeConfig(srcConfig string, out interface{}) {
	file, err := os.Open(srcConfig)
	hbl.HandleError(err)
	defer func() { hbl.HandleError(file.Close()) }()

	decoder := json.NewDecoder(file)
	hbl.HandleError(decoder.Decode(out))
}

type TestConfig struct {
	Description         string `json:"description"`
	FileNameTestFeature string `json:"filename_test_feature"`
	FileNameTestTarget  string `json:"filename_test_target"`
}

type TrainConfig struct {
	FileNameTrainFeature string      `json:"filename_train_feature"`
	FileNameTrainTarget  string      `json:"filename_train_target"`
	Test                 *TestConfig `json:"test,omitempty"`
	FileNameModel        string      `json:"filename_model"`
	NStages              int         `json:"n_stages"`
	LearningRate         float64     `json:"learning_rate"`
	MaxLeafNodes         int         `json:"max_leaf_nodes"`
	MaxDepth             int         `json:"max_depth"`
	RegLambda            float64     `json:"reg_lambda"`
	NBins                int         `json:"n_bins"`
	MinSamplesLeaf       int         `json:"min_samples_leaf"`
	MinHessianToSplit    float64     `json:"min_hessian_to_split"`
	MinGainToSplit       float64     `json:"min_gain_to_split"`
	MaxNoImprovement     int         `json:"max_no_improvement"`
	Tol                  float64     `json:"tol"`
	ThreadsNum           int         `json:"threads_num"`
	Seed                 int64       `json:"seed"`
	Loss                 string      `json:"loss"`
}

func train(srcConfig string) {
	var trainConfig TrainConfig
	decodeConfig(srcConfig, &trainConfig)

	logger.Info().Str("features", trainConfig.FileNameTrainFeature).Msg("load train")
	trainSet, err := hbl.ReadDataset(trainConfig.FileNameTrainFeature, trainConfig.FileNameTrainTarget)
	hbl.HandleError(err)

	var xVal *mat.Dense
	var yVal []float64
	if trainConfig.Test != nil {
		logger.Info().Str("features", trainConfig.Test.FileNameTestFeature).Msg("load test")
		testSet, err := hbl.ReadDataset(trainConfig.Test.FileNameTestFeature, trainConfig.Test.FileNameTestTarget)
		hbl.HandleError(err)
		xVal, yVal = testSet.Features, testSet.Target
	}

	var lossKind hbl.SplitLoss = hbl.MseLoss{}
	if trainConfig.Loss == "logloss" {
		lossKind = hbl.LogLoss{}
	}

	clf, err := hbl.NewGradientBooster(hbl.BoosterParams{
		NStages:           trainConfig.NStages,
		LearningRate:      trainConfig.LearningRate,
		MaxLeafNodes:      trainConfig.MaxLeafNodes,
		MaxDepth:          trainConfig.MaxDepth,
		L2Regularization:  trainConfig.RegLambda,
		NBins:             trainConfig.NBins,
		MinSamplesLeaf:    trainConfig.MinSamplesLeaf,
		MinHessianToSplit: trainConfig.MinHessianToSplit,
		MinGainToSplit:    trainConfig.MinGainToSplit,
		MaxNoImprovement:  trainConfig.MaxNoImprovement,
		Tol:               trainConfig.Tol,
		ThreadsNum:        trainConfig.ThreadsNum,
		Seed:              trainConfig.Seed,
		LossKind:          lossKind,
		Logger:            &logger,
	}, trainSet.Features, trainSet.Target, xVal, yVal)
	hbl.HandleError(err)

	clf.Save(trainConfig.FileNameModel)
	logger.Info().Str("model", trainConfig.FileNameModel).Msg("model saved")
}

type PredictConfig struct {
	DataFeatureFileName string `json:"filename_feature"`
	ModelFileName       string `json:"filename_model"`
	PredictionFileName  string `json:"filename_target"`
	TreesNumber         int    `json:"trees_number"`
}

func predict(srcConfig string) {
	var predictConfig PredictConfig
	decodeConfig(srcConfig, &predictConfig)

	features, err := hbl.ReadNpy(predictConfig.DataFeatureFileName)
	hbl.HandleError(err)

	clf := hbl.LoadModel(predictConfig.ModelFileName)

	var optionalTreeNumber *int
	if predictConfig.TreesNumber != 0 {
		optionalTreeNumber = &predictConfig.TreesNumber
	}

	prediction, err := clf.Predict(features, optionalTreeNumber)
	hbl.HandleError(err)

	out := mat.NewDense(len(prediction), 1, prediction)
	hbl.HandleError(hbl.WriteNpy(predictConfig.PredictionFileName, out))
	logger.Info().Str("target", predictConfig.PredictionFileName).Msg("prediction saved")
}

type BinConfig struct {
	DataFeatureFileName string `json:"filename_feature"`
	BinnedFileName      string `json:"filename_binned"`
	NBins               int    `json:"n_bins"`
	Seed                int64  `json:"seed"`
}

//bin quantizes a raw feature file once and caches the binned matrix on
//disk, so repeated experiments skip the quantile estimation.
func bin(srcConfig string) {
	var binConfig BinConfig
	decodeConfig(srcConfig, &binConfig)

	features, err := hbl.ReadNpy(binConfig.DataFeatureFileName)
	hbl.HandleError(err)

	mapper, err := hbl.NewBinMapper(binConfig.NBins, binConfig.Seed)
	hbl.HandleError(err)
	binned, err := mapper.FitTransform(features)
	hbl.HandleError(err)

	dst, err := os.Create(binConfig.BinnedFileName)
	hbl.HandleError(err)
	defer func() { hbl.HandleError(dst.Close()) }()
	hbl.HandleError(binned.WriteNpy(dst))

	logger.Info().
		Str("binned", binConfig.BinnedFileName).
		Int("features", binned.NumFeatures()).
		Int("samples", binned.NumSamples()).
		Msg("binned matrix saved")
}

type GraphConfig struct {
	ModelFileName     string `json:"filename_model"`
	FigureType        string `json:"figure_type"`
	PicturesDirectory string `json:"pictures_directory"`
	DumpPrefix        string `json:"dump_prefix"`
}

func graph(srcConfig string) {
	var graphConfig GraphConfig
	decodeConfig(srcConfig, &graphConfig)

	clf := hbl.LoadModel(graphConfig.ModelFileName)
	clf.RenderTrees(graphConfig.DumpPrefix, graphConfig.FigureType, graphConfig.PicturesDirectory)
}

func main() {
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var config string
	var memprofile string

	rootCmd := &cobra.Command{
		Use:   "hist_boost",
		Short: "histogram-based gradient boosting over binned features",
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if memprofile != "" {
				f, err := os.Create(memprofile)
				hbl.HandleError(err)
				defer func() { hbl.HandleError(f.Close()) }()
				runtime.GC()
				hbl.HandleError(pprof.WriteHeapProfile(f))
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&config, "config", "hist_config.json", "a config file for the run of the program")
	rootCmd.PersistentFlags().StringVar(&memprofile, "memprofile", "", "write memory profile to `file`")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "train",
		Short: "train a model described by the config file",
		Run:   func(cmd *cobra.Command, args []string) { train(config) },
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "predict",
		Short: "apply a saved model to a feature file",
		Run:   func(cmd *cobra.Command, args []string) { predict(config) },
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "bin",
		Short: "quantize a feature file and cache the binned matrix",
		Run:   func(cmd *cobra.Command, args []string) { bin(config) },
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "graph",
		Short: "render the trees of a saved model",
		Run:   func(cmd *cobra.Command, args []string) { graph(config) },
	})

	hbl.HandleError(rootCmd.Execute())
}
