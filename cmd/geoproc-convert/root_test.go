package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/USACE/cumulus-geoproc/internal/domain"
	"github.com/USACE/cumulus-geoproc/internal/exitcode"
	"github.com/USACE/cumulus-geoproc/internal/plugin"
)

type stubConverter struct {
	products []domain.Product
	res      []plugin.Resolution
	err      error
	gotDst   string
}

func (s *stubConverter) Dispatch(_ context.Context, _, _, dst string) ([]domain.Product, error) {
	s.gotDst = dst
	return s.products, s.err
}

func (s *stubConverter) Resolve(context.Context, string, string) ([]plugin.Resolution, error) {
	return s.res, s.err
}

func (s *stubConverter) Slugs() []string { return []string{"a", "b"} }

func execute(t *testing.T, c Converter, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(func() (Converter, error) { return c, nil })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConvert_PrintsProducts(t *testing.T) {
	v := "2022-08-18T00:00:00+00:00"
	stub := &stubConverter{products: []domain.Product{{
		FileType: "hrrr-total-precip",
		File:     "/tmp/hrrr-total-precip.20220818_0100.tif",
		Datetime: "2022-08-18T01:00:00+00:00",
		Version:  &v,
	}}}

	out, err := execute(t, stub, "convert", "--plugin", "hrrr-total-precip", "--src", "/tmp/in.grib2", "--dst", "/tmp/out")
	require.NoError(t, err)
	assert.Contains(t, out, `"filetype": "hrrr-total-precip"`)
	assert.Contains(t, out, `"version": "2022-08-18T00:00:00+00:00"`)
	assert.Equal(t, "/tmp/out", stub.gotDst)
}

func TestConvert_NoProductsIsDataError(t *testing.T) {
	out, err := execute(t, &stubConverter{products: []domain.Product{}}, "convert", "--plugin", "p", "--src", "/tmp/in.nc")
	require.Error(t, err)
	assert.Contains(t, out, "[]")

	var coded *codedError
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, exitcode.DataError, coded.code)
}

func TestConvert_UnknownPlugin(t *testing.T) {
	_, err := execute(t, &stubConverter{err: plugin.ErrUnknownPlugin}, "convert", "--plugin", "nope", "--src", "/tmp/in.nc")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitcode.For(err))
}

func TestConvert_RequiresFlags(t *testing.T) {
	_, err := execute(t, &stubConverter{}, "convert", "--plugin", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "src")
}

func TestResolve_PrintsBands(t *testing.T) {
	stub := &stubConverter{res: []plugin.Resolution{{FileType: "nbm-co-qpf", Descriptor: `{GRIB_ELEMENT="QPF01"}`, Band: 3}}}

	out, err := execute(t, stub, "resolve", "--plugin", "nbm-co-01h", "--src", "/tmp/blend.grib2")
	require.NoError(t, err)
	assert.Contains(t, out, `"band": 3`)
	assert.Contains(t, out, `"filetype": "nbm-co-qpf"`)
}

func TestPlugins_ListsSlugs(t *testing.T) {
	out, err := execute(t, &stubConverter{}, "plugins")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", out)
}

func TestLoadError_IsReturned(t *testing.T) {
	root := newRootCmd(func() (Converter, error) {
		return nil, &codedError{code: exitcode.ConfigError, err: errors.New("bad table")}
	})
	root.SetArgs([]string{"plugins"})
	root.SetOut(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, "bad table", err.Error())
}
