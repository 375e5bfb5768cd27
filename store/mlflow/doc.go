// Package mlflow logs runs to an MLflow tracking server over its REST API.
//
// Experiments are looked up by name and created when missing. Params and
// metrics go through runs/log-batch; EndRun updates the run status.
package mlflow
