package insertion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfreporter/perfreporter/internal/common/perferrors"
)

const jtl = `timeStamp,elapsed,label,responseCode,responseMessage,threadName,success,bytes,sentBytes,grpThreads,allThreads,Hostname
1709294400000,120,login,200,OK,Thread Group 1-1,true,512,128,1,1,agent-1
1709294400500,4999,login,500,Internal Server Error,Thread Group 1-1,false,64,128,1,2,agent-1
`

func TestReadCSV(t *testing.T) {
	frame, err := ReadCSV(strings.NewReader(jtl))
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Len())
	assert.Equal(t, []string{"agent-1", "agent-1"}, frame.Columns[ColumnHostname])

	samples, err := frame.Samples()
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "Internal Server Error", samples[1].ResponseMessage)
	assert.Equal(t, int64(512), samples[0].Bytes)
	assert.Equal(t, int64(2), samples[1].AllThreads)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.True(t, perferrors.IsInvalidArgument(err))

	_, err = ReadCSV(strings.NewReader("timeStamp,label\n1,a,extra\n"))
	assert.Error(t, err)
}
