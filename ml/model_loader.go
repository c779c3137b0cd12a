package ml

import (
	"fmt"
)

// Model types accepted by LoadModel.
const (
	ModelXGBoost = "xgboost"
	ModelLinear  = "linear"
)

func LoadModel(modelType, path string) (Regressor, error) {
	switch modelType {
	case ModelXGBoost:
		model := &TreeEnsemble{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	case ModelLinear:
		model := &LinearModel{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}
