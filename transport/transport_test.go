package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingCloser struct{ fakeEndpoint }

func (f *failingCloser) Close() error {
	_ = f.fakeEndpoint.Close()
	return errors.New("close failed")
}

func TestTransportCloseSharedEndpointOnce(t *testing.T) {
	ep := &fakeEndpoint{}
	assert.NoError(t, Transport{Publisher: ep, Subscriber: ep}.Close())
	assert.Equal(t, 1, ep.closed)
}

func TestTransportCloseBothSides(t *testing.T) {
	pub := &fakeEndpoint{}
	sub := &failingCloser{}
	err := Transport{Publisher: pub, Subscriber: sub}.Close()
	assert.EqualError(t, err, "close failed")
	assert.Equal(t, 1, pub.closed)
	assert.Equal(t, 1, sub.closed)
	assert.NoError(t, Transport{}.Close())
}

func TestCloseOnError(t *testing.T) {
	boom := errors.New("subscriber failed")
	pub := &fakeEndpoint{}
	assert.Equal(t, boom, CloseOnError(pub, boom))
	assert.Equal(t, 1, pub.closed)
	assert.Equal(t, boom, CloseOnError(nil, boom))

	err := CloseOnError(&failingCloser{}, boom)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "close failed")
}
