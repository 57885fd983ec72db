// Package engine 封装推理图：张量、显式工作区和图执行
package engine

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrBlobNotFound   = errors.New("blob not found")
	ErrBlobExists     = errors.New("blob already fed")
	ErrStaleWorkspace = errors.New("workspace holds output of a previous run, reset it first")
	ErrShapeMismatch  = errors.New("tensor data does not match shape")
)

// Tensor 行主序 float32 张量
type Tensor struct {
	Shape []int64
	Data  []float32
}

func NewTensor(shape []int64, data []float32) (Tensor, error) {
	t := Tensor{Shape: append([]int64(nil), shape...), Data: data}
	if int64(len(data)) != t.Elements() {
		return Tensor{}, fmt.Errorf("%w: shape %v wants %d values, got %d", ErrShapeMismatch, shape, t.Elements(), len(data))
	}
	return t, nil
}

// Elements 元素个数，空 shape 视为 0
func (t Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Clone 深拷贝，工作区之间不共享底层数组
func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: append([]int64(nil), t.Shape...),
		Data:  append([]float32(nil), t.Data...),
	}
}

// Workspace 一次图执行的命名 blob 集合
// 调用方持有并在每次执行前 Reset，不是包级全局状态
type Workspace struct {
	blobs map[string]Tensor
	runs  int
}

func NewWorkspace() *Workspace {
	return &Workspace{blobs: make(map[string]Tensor)}
}

// Reset 清空所有 blob
func (w *Workspace) Reset() {
	clear(w.blobs)
}

func (w *Workspace) Feed(name string, t Tensor) error {
	if _, ok := w.blobs[name]; ok {
		return fmt.Errorf("%w: %q", ErrBlobExists, name)
	}
	w.blobs[name] = t.Clone()
	return nil
}

func (w *Workspace) Fetch(name string) (Tensor, error) {
	t, ok := w.blobs[name]
	if !ok {
		return Tensor{}, fmt.Errorf("%w: %q", ErrBlobNotFound, name)
	}
	return t, nil
}

func (w *Workspace) Has(name string) bool {
	_, ok := w.blobs[name]
	return ok
}

// Blobs 返回排序后的 blob 名
func (w *Workspace) Blobs() []string {
	names := make([]string, 0, len(w.blobs))
	for name := range w.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runs 该工作区上成功执行的次数
func (w *Workspace) Runs() int {
	return w.runs
}

// store 图执行后写回输出
func (w *Workspace) store(name string, t Tensor) {
	w.blobs[name] = t
	w.runs++
}
