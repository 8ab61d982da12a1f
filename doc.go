// Package ho provides sequential model-based (Bayesian) optimization of
// expensive black-box functions, such as ML hyperparameters or system tuning
// knobs. It fits a Gaussian Process to finished evaluations, scores unseen
// points with an acquisition function and proposes the most promising ones,
// while keeping a consistent ledger of pending and finished evaluations for
// any number of concurrent workers.
//
// # Features
//
// The package includes the following key features:
//
//   - Bayesian Optimization: Gaussian Process surrogate (gonum Cholesky) with
//     length scale re-estimated by maximum marginal likelihood on every fit
//   - Acquisition Functions: Expected Improvement (EI) and Probability of
//     Improvement (PI), maximized with multistart Nelder-Mead
//   - Mixed Parameter Spaces: continuous, integer, discrete and categorical
//     parameters, encoded into a normalized [0,1] vector
//   - Ask/Tell Interface: workers pull candidates and push results
//     asynchronously; an ExperimentAssistant serializes every state change
//   - Multiple Experiments: a Lab coordinates independent experiments by id
//   - Graceful Degradation: numerical failures fall back to random sampling
//     instead of blocking candidate production
//   - Closed Loop: OptimizeHyperparameters tunes a Go function end to end
//
// # Ask/Tell
//
//	space, err := ho.NewParameterSpace(map[string]ho.ParamDef{
//	    "learning_rate": ho.MinMaxNumeric{Min: 0.0001, Max: 0.1},
//	    "layers":        ho.ParameterRange[int]{Min: 1, Max: 4},
//	    "optimizer":     ho.Categorical{Values: []string{"sgd", "adam"}},
//	})
//
//	config := ho.DefaultConfig()
//	config.InitialSamples = 5
//
//	assistant, err := ho.NewExperimentAssistant("mnist", space, config)
//
//	for i := 0; i < 30; i++ {
//	    c, err := assistant.NextCandidate(ctx)
//	    if err != nil {
//	        return err
//	    }
//
//	    loss, err := train(c.Params)
//	    if err != nil {
//	        _ = assistant.Update(c, ho.StatusFinishedInvalid)
//	        continue
//	    }
//
//	    c.SetResult(loss)
//	    _ = assistant.Update(c, ho.StatusFinished)
//	}
//
//	best := assistant.BestCandidate()
//
// # Acquisition Functions
//
// 1. Expected Improvement (EI), the default:
//
//   - Balances improvement probability and magnitude
//
//   - Most commonly used in practice
//
//     config := DefaultConfig()
//     config.Acquisition = AcquisitionExpectedImprovement
//
// 2. Probability of Improvement (PI):
//
//   - Conservative exploration strategy
//
//   - Focuses on small, reliable improvements
//
//     config := DefaultConfig()
//     config.Acquisition = AcquisitionProbabilityOfImprovement
//     config.AcqParams.Xi = 0.01  // Minimum improvement threshold
//
// # Thread Safety
//
//   - ExperimentAssistant serializes all pending/finished transitions
//   - Model fitting and acquisition maximization run outside its lock, on a
//     snapshot captured under it
//   - BayesianOptimizer holds no per-experiment state and can be shared
//   - Lab operations on different experiments don't contend
package ho
