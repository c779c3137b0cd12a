package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// TreeEnsemble is a gradient boosted regression model read from the JSON
// format written by XGBoost's save_model ("gbtree" and "dart" boosters).
type TreeEnsemble struct {
	trees      []regressionTree
	weights    []float64
	baseMargin float64
	numFeature int
	objective  string
	inverse    func(float64) float64
}

type regressionTree struct {
	left        []int
	right       []int
	feature     []int
	condition   []float64
	defaultLeft []bool
}

type xgbDocument struct {
	Learner struct {
		GradientBooster   xgbBooster `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumClass   string `json:"num_class"`
			NumFeature string `json:"num_feature"`
			NumTarget  string `json:"num_target"`
		} `json:"learner_model_param"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

type xgbBooster struct {
	Name   string        `json:"name"`
	Model  *xgbTreeModel `json:"model"`
	GBTree *struct {
		Model xgbTreeModel `json:"model"`
	} `json:"gbtree"`
	WeightDrop []float64 `json:"weight_drop"`
}

type xgbTreeModel struct {
	Trees []xgbTree `json:"trees"`
}

type xgbTree struct {
	LeftChildren    []int     `json:"left_children"`
	RightChildren   []int     `json:"right_children"`
	SplitIndices    []int     `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     flagList  `json:"default_left"`
	SplitType       []int     `json:"split_type"`
}

// flagList accepts both [0,1] and [false,true] encodings.
type flagList []bool

func (f *flagList) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	flags := make([]bool, len(raw))
	for i, v := range raw {
		switch x := v.(type) {
		case bool:
			flags[i] = x
		case float64:
			flags[i] = x != 0
		default:
			return fmt.Errorf("invalid flag %v", v)
		}
	}
	*f = flags
	return nil
}

func (m *TreeEnsemble) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc xgbDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("decode xgboost model %s: %w", path, err)
	}
	if err := m.init(&doc); err != nil {
		return fmt.Errorf("invalid xgboost model %s: %w", path, err)
	}
	return nil
}

func (m *TreeEnsemble) init(doc *xgbDocument) error {
	param := doc.Learner.LearnerModelParam
	if n, _ := strconv.Atoi(param.NumClass); n > 0 {
		return errors.New("classification models are not supported")
	}
	if n, _ := strconv.Atoi(param.NumTarget); n > 1 {
		return errors.New("multi-target models are not supported")
	}
	numFeature, err := strconv.Atoi(param.NumFeature)
	if err != nil || numFeature <= 0 {
		return fmt.Errorf("invalid num_feature %q", param.NumFeature)
	}
	baseScore, err := parseBaseScore(param.BaseScore)
	if err != nil {
		return err
	}

	objective := doc.Learner.Objective.Name
	baseMargin, inverse, err := objectiveLink(objective, baseScore)
	if err != nil {
		return err
	}

	booster := doc.Learner.GradientBooster
	var model *xgbTreeModel
	switch booster.Name {
	case "gbtree":
		model = booster.Model
	case "dart":
		if booster.GBTree != nil {
			model = &booster.GBTree.Model
		}
	default:
		return fmt.Errorf("unsupported booster %q", booster.Name)
	}
	if model == nil || len(model.Trees) == 0 {
		return errors.New("model has no trees")
	}

	weights := make([]float64, len(model.Trees))
	for i := range weights {
		weights[i] = 1
	}
	if booster.Name == "dart" && len(booster.WeightDrop) > 0 {
		if len(booster.WeightDrop) != len(model.Trees) {
			return fmt.Errorf("weight_drop has %d entries for %d trees", len(booster.WeightDrop), len(model.Trees))
		}
		copy(weights, booster.WeightDrop)
	}

	trees := make([]regressionTree, len(model.Trees))
	for i, raw := range model.Trees {
		tree, err := buildTree(raw, numFeature)
		if err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = tree
	}

	m.trees = trees
	m.weights = weights
	m.baseMargin = baseMargin
	m.numFeature = numFeature
	m.objective = objective
	m.inverse = inverse
	return nil
}

func buildTree(raw xgbTree, numFeature int) (regressionTree, error) {
	n := len(raw.LeftChildren)
	if n == 0 {
		return regressionTree{}, errors.New("empty tree")
	}
	if len(raw.RightChildren) != n || len(raw.SplitIndices) != n || len(raw.SplitConditions) != n {
		return regressionTree{}, errors.New("node arrays differ in length")
	}
	defaultLeft := []bool(raw.DefaultLeft)
	if defaultLeft == nil {
		defaultLeft = make([]bool, n)
	}
	if len(defaultLeft) != n {
		return regressionTree{}, errors.New("default_left length differs from node count")
	}
	for _, st := range raw.SplitType {
		if st != 0 {
			return regressionTree{}, errors.New("categorical splits are not supported")
		}
	}
	for i := 0; i < n; i++ {
		l, r := raw.LeftChildren[i], raw.RightChildren[i]
		if l == -1 {
			continue
		}
		if l < 0 || l >= n || r < 0 || r >= n || l == i || r == i {
			return regressionTree{}, fmt.Errorf("node %d has invalid children %d/%d", i, l, r)
		}
		if f := raw.SplitIndices[i]; f < 0 || f >= numFeature {
			return regressionTree{}, fmt.Errorf("node %d splits on feature %d outside [0,%d)", i, f, numFeature)
		}
	}
	return regressionTree{
		left:        raw.LeftChildren,
		right:       raw.RightChildren,
		feature:     raw.SplitIndices,
		condition:   raw.SplitConditions,
		defaultLeft: defaultLeft,
	}, nil
}

// leaf walks from the root to a leaf. A walk longer than the node count
// means the tree has a cycle.
func (t *regressionTree) leaf(features []float64) (float64, error) {
	idx := 0
	for steps := 0; t.left[idx] != -1; steps++ {
		if steps >= len(t.left) {
			return 0, errors.New("tree traversal did not reach a leaf")
		}
		v := features[t.feature[idx]]
		switch {
		case math.IsNaN(v):
			if t.defaultLeft[idx] {
				idx = t.left[idx]
			} else {
				idx = t.right[idx]
			}
		case v < t.condition[idx]:
			idx = t.left[idx]
		default:
			idx = t.right[idx]
		}
	}
	return t.condition[idx], nil
}

func (m *TreeEnsemble) Predict(features []float64) (float64, error) {
	if len(m.trees) == 0 {
		return 0, errors.New("model not loaded")
	}
	if len(features) != m.numFeature {
		return 0, &ShapeError{Expected: m.numFeature, Got: len(features)}
	}
	margin := m.baseMargin
	for i := range m.trees {
		value, err := m.trees[i].leaf(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		margin += m.weights[i] * value
	}
	return m.inverse(margin), nil
}

func (m *TreeEnsemble) NumFeatures() int { return m.numFeature }

// Objective returns the training objective recorded in the artifact.
func (m *TreeEnsemble) Objective() string { return m.objective }

// parseBaseScore accepts "5E-1" and the bracketed "[5E-1]" form of newer releases.
func parseBaseScore(s string) (float64, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "[]"))
	if s == "" {
		return 0.5, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid base_score %q: %w", s, err)
	}
	return v, nil
}

func identity(x float64) float64 { return x }

// objectiveLink returns the base margin and the margin-to-output transform.
func objectiveLink(objective string, baseScore float64) (float64, func(float64) float64, error) {
	switch objective {
	case "", "reg:squarederror", "reg:linear", "reg:absoluteerror", "reg:pseudohubererror",
		"reg:squaredlogerror", "reg:quantileerror":
		return baseScore, identity, nil
	case "reg:gamma", "reg:tweedie", "count:poisson":
		if baseScore <= 0 {
			return 0, nil, fmt.Errorf("base_score %v must be positive for %s", baseScore, objective)
		}
		return math.Log(baseScore), math.Exp, nil
	default:
		return 0, nil, fmt.Errorf("unsupported objective %q", objective)
	}
}
