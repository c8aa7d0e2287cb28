package dex

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type fileSpec struct {
	Classes []classSpec `yaml:"classes"`
}

type classSpec struct {
	Name        string       `yaml:"name"`
	Flags       string       `yaml:"flags"`
	Annotations []string     `yaml:"annotations"`
	Methods     []methodSpec `yaml:"methods"`
}

type methodSpec struct {
	Name        string   `yaml:"name"`
	Proto       string   `yaml:"proto"`
	Flags       string   `yaml:"flags"`
	Registers   int      `yaml:"registers"`
	Annotations []string `yaml:"annotations"`
	Code        string   `yaml:"code"`
}

// LoadFile reads a YAML description of classes and their method bodies.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil { return nil, errors.Wrap(err, "open") }
	defer f.Close()
	file, err := Load(f)
	if err != nil { return nil, errors.Wrapf(err, "%s", path) }
	return file, nil
}

func Load(r io.Reader) (*File, error) {
	var spec fileSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode")
	}
	file := &File{}
	for _, cs := range spec.Classes {
		cls, err := buildClass(cs)
		if err != nil { return nil, err }
		file.Classes = append(file.Classes, cls)
	}
	return file, nil
}

func buildClass(cs classSpec) (*Class, error) {
	if n, err := descriptorLen(cs.Name); err != nil || n != len(cs.Name) || cs.Name[0] != 'L' {
		return nil, errors.Errorf("bad class name %q", cs.Name)
	}
	flags, err := ParseAccessFlags(cs.Flags)
	if err != nil { return nil, errors.Wrapf(err, "class %s", cs.Name) }
	cls := &Class{Name: cs.Name, Flags: flags, Annotations: cs.Annotations}
	for _, ms := range cs.Methods {
		m, err := buildMethod(cls, ms)
		if err != nil { return nil, errors.Wrapf(err, "method %s->%s%s", cs.Name, ms.Name, ms.Proto) }
		cls.Methods = append(cls.Methods, m)
	}
	return cls, nil
}

func buildMethod(cls *Class, ms methodSpec) (*Method, error) {
	params, ret, err := ParseProto(ms.Proto)
	if err != nil { return nil, err }
	flags, err := ParseAccessFlags(ms.Flags)
	if err != nil { return nil, err }
	m := &Method{
		Class: cls, Name: ms.Name, Proto: ms.Proto, Params: params, Return: ret,
		Flags: flags, Registers: ms.Registers, Annotations: ms.Annotations,
	}
	if !m.IsStatic() { m.Ins = 1 }
	for _, p := range params {
		m.Ins += TypeSize(p)
	}
	if ms.Code == "" { return m, nil }
	if m.Registers < m.Ins {
		return nil, errors.Errorf("%d registers cannot hold %d argument words", m.Registers, m.Ins)
	}
	if m.Code, m.Tries, err = Assemble(ms.Code, m.Registers, m.Ins); err != nil { return nil, err }
	if err := SplitBlocks(m); err != nil { return nil, err }
	return m, nil
}

// NewMethod assembles a single method outside of a YAML file.
func NewMethod(class, name, proto, flags string, registers int, code string) (*Method, error) {
	cls := &Class{Name: class}
	m, err := buildMethod(cls, methodSpec{Name: name, Proto: proto, Flags: flags, Registers: registers, Code: code})
	if err != nil { return nil, errors.Wrapf(err, "method %s->%s%s", class, name, proto) }
	cls.Methods = append(cls.Methods, m)
	return m, nil
}
