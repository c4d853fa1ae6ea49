package pipeline

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/hed1ad/fraudguard/pkg/classifiers/forest"
	pkgio "github.com/hed1ad/fraudguard/pkg/io"
)

// SaveModel writes the model and its ordered feature list as one unit:
// either both files are replaced or neither is.
func SaveModel(modelPath, featuresPath string, model *forest.RandomForest, featureNames []string) error {
	data, err := model.Save()
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	err = pkgio.WriteFilesAtomic(
		pkgio.AtomicFile{Path: modelPath, Write: func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}},
		pkgio.AtomicFile{Path: featuresPath, Write: func(w io.Writer) error {
			return gob.NewEncoder(w).Encode(featureNames)
		}},
	)
	if err != nil {
		return fmt.Errorf("write model artifacts: %w", err)
	}
	return nil
}

// LoadModel reads a model and feature list written by SaveModel.
func LoadModel(modelPath, featuresPath string) (*forest.RandomForest, []string, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, nil, err
	}
	model := forest.New()
	if err := model.Load(data); err != nil {
		return nil, nil, err
	}

	raw, err := os.ReadFile(featuresPath)
	if err != nil {
		return nil, nil, err
	}
	var names []string
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&names); err != nil {
		return nil, nil, fmt.Errorf("decode feature list: %w", err)
	}
	return model, names, nil
}
