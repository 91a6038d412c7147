package mft_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cugu/ntfsmft/mft"
)

func TestRecordFlagClassify(t *testing.T) {
	cases := []struct {
		flag     mft.RecordFlag
		expected mft.RecordClass
	}{
		{mft.RecordFlag(0), mft.ClassDeletedFile},
		{mft.RecordFlagIsDirectory, mft.ClassDeletedDirectory},
		{mft.RecordFlagInUse, mft.ClassFile},
		{mft.RecordFlagInUse | mft.RecordFlagIsDirectory, mft.ClassDirectory},
		{mft.RecordFlagInExtend, mft.ClassOther},
		{mft.RecordFlagInUse | mft.RecordFlagIsIndex, mft.ClassOther},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, c.flag.Classify())
	}
}

func TestRecordClassString(t *testing.T) {
	assert.Equal(t, "file", mft.ClassFile.String())
	assert.Equal(t, "directory", mft.ClassDirectory.String())
	assert.Equal(t, "deleted-file", mft.ClassDeletedFile.String())
	assert.Equal(t, "deleted-directory", mft.ClassDeletedDirectory.String())
	assert.Equal(t, "other", mft.ClassOther.String())
}

func TestChooseFileName_Empty(t *testing.T) {
	_, ok := mft.ChooseFileName(nil)
	assert.False(t, ok)
}

func TestChooseFileName_PrefersWin32AndDos(t *testing.T) {
	names := []mft.FileName{
		{Name: "DOCUME~1.TXT", Namespace: mft.NamespaceDos},
		{Name: "document.txt", Namespace: mft.NamespaceWin32},
		{Name: "document.txt", Namespace: mft.NamespaceWin32AndDos},
	}
	chosen, ok := mft.ChooseFileName(names)
	assert.True(t, ok)
	assert.Equal(t, "document.txt", chosen.Name)
	assert.Equal(t, mft.NamespaceWin32AndDos, chosen.Namespace)
}

func TestChooseFileName_FallsBackToPosix(t *testing.T) {
	names := []mft.FileName{
		{Name: "case-sensitive-name", Namespace: mft.NamespacePosix},
	}
	chosen, ok := mft.ChooseFileName(names)
	assert.True(t, ok)
	assert.Equal(t, "case-sensitive-name", chosen.Name)
}

func TestChooseFileName_Win32BeatsDos(t *testing.T) {
	names := []mft.FileName{
		{Name: "DOCUME~1.TXT", Namespace: mft.NamespaceDos},
		{Name: "document-long-name.txt", Namespace: mft.NamespaceWin32},
	}
	chosen, ok := mft.ChooseFileName(names)
	assert.True(t, ok)
	assert.Equal(t, "document-long-name.txt", chosen.Name)
}
