package mlp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tabularml/dataset"
)

const fileVersion = 1

// ErrUnsupportedVersion is returned for model files of an unknown format version.
var ErrUnsupportedVersion = errors.New("unsupported model file version")

type modelFile struct {
	Version   int                     `json:"version"`
	CreatedAt time.Time               `json:"created_at"`
	Params    Params                  `json:"params"`
	Softmax   bool                    `json:"softmax"`
	Target    dataset.AttributeMeta   `json:"target"`
	Inputs    []dataset.AttributeMeta `json:"inputs"`
	Layers    []layerFile             `json:"layers"`
}

type layerFile struct {
	Activation string   `json:"activation"`
	Neurons    []Neuron `json:"neurons"`
}

// MarshalJSON writes learned weights and metadata. Training outputs, deltas and the loss
// history are not part of the file.
func (c *Classifier) MarshalJSON() ([]byte, error) {
	file := modelFile{
		Version:   fileVersion,
		CreatedAt: c.createdAt,
		Params:    c.params,
		Softmax:   c.softmax,
		Target:    c.target,
		Inputs:    c.inputs,
		Layers:    make([]layerFile, len(c.net.layers)),
	}
	for i, l := range c.net.layers {
		file.Layers[i] = layerFile{Activation: l.Activation.Name, Neurons: l.Neurons}
	}
	return json.Marshal(file)
}

// UnmarshalJSON restores a classifier and validates its layer widths.
func (c *Classifier) UnmarshalJSON(data []byte) error {
	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != fileVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, file.Version)
	}
	if len(file.Target.Values) == 0 {
		return ErrNoClasses
	}
	if len(file.Inputs) == 0 {
		return ErrNoInputs
	}
	layers := make([]*Layer, len(file.Layers))
	for i, lf := range file.Layers {
		act, err := ActivationByName(lf.Activation)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = &Layer{Neurons: lf.Neurons, Activation: act}
	}
	net, err := NewNetwork(layers...)
	if err != nil {
		return err
	}
	if net.Inputs() != len(file.Inputs) {
		return fmt.Errorf("%w: network expects %d inputs, file lists %d", ErrLayerMismatch, net.Inputs(), len(file.Inputs))
	}
	if net.Outputs() != len(file.Target.Values) {
		return fmt.Errorf("%w: network outputs %d, target has %d classes", ErrLayerMismatch, net.Outputs(), len(file.Target.Values))
	}
	*c = Classifier{
		params:    file.Params,
		target:    file.Target,
		inputs:    file.Inputs,
		net:       net,
		softmax:   file.Softmax,
		createdAt: file.CreatedAt,
	}
	return nil
}

// Unmarshal decodes a classifier written by MarshalJSON.
func Unmarshal(data []byte) (*Classifier, error) {
	c := &Classifier{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes the classifier as indented JSON.
func (c *Classifier) Save(path string) error {
	payload, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load reads a classifier written by Save.
func Load(path string) (*Classifier, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}
